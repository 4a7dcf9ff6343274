package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/brinkfs/nfsd/internal/alias"
	"github.com/brinkfs/nfsd/internal/config"
	"github.com/brinkfs/nfsd/internal/fsadapter"
	"github.com/brinkfs/nfsd/internal/logger"
	"github.com/brinkfs/nfsd/internal/metrics"
	"github.com/brinkfs/nfsd/internal/mount"
	"github.com/brinkfs/nfsd/internal/mountcache"
	"github.com/brinkfs/nfsd/internal/nfsv3"
	"github.com/brinkfs/nfsd/internal/portmap"
	"github.com/brinkfs/nfsd/internal/rpc"
	"github.com/brinkfs/nfsd/internal/transport"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config(cfg.Logging)); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	metrics.Init(cfg.Metrics.Enabled)
	rpcMetrics := metrics.NewRPCMetrics()

	adapter := fsadapter.New(cfg.Identity.DefaultUID, cfg.Identity.DefaultGID)
	resolver := alias.New(adapter)

	watcher, err := config.NewAliasWatcher(cfg.AliasFile, resolver)
	if err != nil {
		return fmt.Errorf("load alias file %q: %w", cfg.AliasFile, err)
	}
	defer watcher.Close()

	cache, err := loadCache(cfg.CacheFile, resolver, adapter)
	if err != nil {
		return fmt.Errorf("load mount cache %q: %w", cfg.CacheFile, err)
	}

	portmapRegistry := portmap.NewRegistry()
	nfsServer := nfsv3.New(cache, adapter)

	router := rpc.NewRouter()
	router.Register(rpc.ProgramPortmap, rpc.PortmapVersion2, portmap.Procedures(portmapRegistry))
	router.Register(rpc.ProgramMount, rpc.MountVersion3, mount.Procedures(cache))
	router.Register(rpc.ProgramNFS, rpc.NFSVersion3, nfsServer.Procedures())
	router.SetObserver(observeRPC(rpcMetrics, cache))

	// This process owns MOUNT and NFS itself, so it can answer its own
	// GETPORT queries without a separate rpcbind registration step.
	registerSelf(portmapRegistry, rpc.ProgramMount, rpc.MountVersion3, uint32(cfg.Listen.Mount))
	registerSelf(portmapRegistry, rpc.ProgramNFS, rpc.NFSVersion3, uint32(cfg.Listen.NFS))

	dispatcher := traceDispatcher{router: router}

	servers := []*transport.Server{
		transport.NewServer(transport.Config{Name: "portmap", Port: cfg.Listen.Portmap, EnableTCP: true, EnableUDP: true}, dispatcher),
		transport.NewServer(transport.Config{Name: "mount", Port: cfg.Listen.Mount, EnableTCP: true, EnableUDP: true}, dispatcher),
		transport.NewServer(transport.Config{Name: "nfs", Port: cfg.Listen.NFS, EnableTCP: true, EnableUDP: true}, dispatcher),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go watcher.Run(ctx)

	var wg sync.WaitGroup
	serverErrs := make(chan error, len(servers)+1)
	for _, s := range servers {
		wg.Add(1)
		go func(s *transport.Server) {
			defer wg.Done()
			if err := s.Serve(ctx); err != nil {
				serverErrs <- err
			}
		}(s)
	}
	for _, s := range servers {
		<-s.Ready()
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		metricsSrv, err = metrics.NewServer(fmt.Sprintf(":%d", cfg.Metrics.Port), func() bool { return true })
		if err != nil {
			cancel()
			return fmt.Errorf("start metrics server: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsSrv.Serve(ctx); err != nil {
				serverErrs <- err
			}
		}()
		logger.Info("metrics server listening", "addr", metricsSrv.Addr())
	}

	logger.Info("nfsd is running",
		"portmap_port", cfg.Listen.Portmap,
		"mount_port", cfg.Listen.Mount,
		"nfs_port", cfg.Listen.NFS,
	)

	quit := make(chan struct{})
	go readQuitCommand(os.Stdin, quit)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("quit command received, shutting down")
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErrs:
		logger.Error("a listener failed, shutting down", "error", err)
	}
	signal.Stop(sigChan)
	cancel()
	wg.Wait()

	if err := saveCache(cfg.CacheFile, cache); err != nil {
		return fmt.Errorf("save mount cache: %w", err)
	}
	logger.Info("mount cache saved", "path", cfg.CacheFile)

	return nil
}

// registerSelf records a PORTMAP v2 mapping for a program this process
// serves itself, across both transports.
func registerSelf(registry *portmap.Registry, prog, vers, port uint32) {
	registry.Set(portmap.Mapping{Prog: prog, Vers: vers, Prot: portmap.ProtoTCP, Port: port})
	registry.Set(portmap.Mapping{Prog: prog, Vers: vers, Prot: portmap.ProtoUDP, Port: port})
}

// loadCache restores the mount cache from path, or starts an empty one
// if path does not yet exist (first run).
func loadCache(path string, resolver *alias.Resolver, adapter *fsadapter.Adapter) (*mountcache.Cache, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return mountcache.New(resolver, adapter), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return mountcache.Restore(f, resolver, adapter)
}

func saveCache(path string, cache *mountcache.Cache) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return cache.Save(f)
}

// readQuitCommand watches r for a line reading "quit" or "q" and closes
// quit when one arrives. It returns without closing quit if r is closed
// first (e.g. no interactive terminal is attached).
func readQuitCommand(r *os.File, quit chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "quit", "q":
			close(quit)
			return
		}
	}
}

// traceDispatcher assigns each inbound RPC message a trace id and logs
// its arrival and completion, satisfying transport.Dispatcher.
type traceDispatcher struct {
	router *rpc.Router
}

func (d traceDispatcher) Dispatch(ctx context.Context, msg []byte, sender string) []byte {
	cc := logger.NewCallContext(uuid.NewString(), sender)
	ctx = logger.WithContext(ctx, cc)

	logger.DebugCtx(ctx, "rpc call received", "bytes", len(msg))
	reply := d.router.Dispatch(ctx, msg, sender)
	logger.DebugCtx(ctx, "rpc call completed", "reply_bytes", len(reply))

	return reply
}

// observeRPC builds an rpc.Observer recording per-call metrics and the
// current mount count, resolved against Router.Dispatch's program
// number and the matched procedure's name.
func observeRPC(m *metrics.RPCMetrics, cache *mountcache.Cache) rpc.Observer {
	return func(program uint32, procedure, status string, duration time.Duration) {
		m.RecordCall(programName(program), orUnknown(procedure), status, duration)
		m.SetActiveMounts(cache.MountCount())
	}
}

func programName(program uint32) string {
	switch program {
	case rpc.ProgramPortmap:
		return "portmap"
	case rpc.ProgramMount:
		return "mount"
	case rpc.ProgramNFS:
		return "nfs"
	default:
		return "unknown"
	}
}

func orUnknown(name string) string {
	if name == "" {
		return "unknown"
	}
	return name
}
