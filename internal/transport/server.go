// Package transport implements the dual TCP/UDP RPC listener of spec.md
// §4.3, generalized across the three programs this server runs
// (PORTMAP, MOUNT, NFSv3): a UDP datagram loop (no record marking) and a
// TCP accept loop with per-connection record-mark framing, both handing
// complete RPC messages to a Dispatcher and writing back whatever reply
// it returns.
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/brinkfs/nfsd/internal/logger"
)

// maxFragmentSize is the record-marking fragment cap of spec.md §4.3: a
// single-fragment message may not exceed 1 MiB.
const maxFragmentSize = 1 << 20

// lastFragmentBit marks the final (and, in this server, only supported)
// fragment of an RPC record.
const lastFragmentBit = 0x80000000

// udpMaxDatagram is the largest UDP datagram this server will read.
const udpMaxDatagram = 65535

// idleTimeout bounds how long a TCP connection may sit between requests
// before being dropped.
const idleTimeout = 5 * time.Second

// Dispatcher turns one complete RPC message into a reply. A nil return
// means no reply should be sent (malformed call, or a dropped message
// per spec.md §4.4's "malformed call" outcome).
type Dispatcher interface {
	Dispatch(ctx context.Context, msg []byte, sender string) []byte
}

// Config describes one listener: the port it binds and which transports
// are enabled. A service (portmap/mount/nfsv3) normally enables both.
type Config struct {
	Name           string // for logging: "portmap", "mount", "nfsv3"
	Port           int
	EnableTCP      bool
	EnableUDP      bool
	MaxConnections int // default 64 if zero
}

// Server runs Config's TCP and UDP listeners concurrently and routes
// every complete RPC message it reads to Dispatcher.
type Server struct {
	config     Config
	dispatcher Dispatcher

	tcpListener net.Listener
	udpConn     *net.UDPConn

	shutdown      chan struct{}
	shutdownOnce  sync.Once
	wg            sync.WaitGroup
	ready         chan struct{}
	connSemaphore chan struct{}
}

// NewServer builds a Server for cfg, dispatching complete RPC messages
// to dispatcher.
func NewServer(cfg Config, dispatcher Dispatcher) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 64
	}
	return &Server{
		config:        cfg,
		dispatcher:    dispatcher,
		shutdown:      make(chan struct{}),
		ready:         make(chan struct{}),
		connSemaphore: make(chan struct{}, cfg.MaxConnections),
	}
}

// Serve binds the configured listeners and blocks until ctx is
// cancelled or Stop is called.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	if s.config.EnableTCP {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("%s: listen tcp %s: %w", s.config.Name, addr, err)
		}
		s.tcpListener = l
	}

	if s.config.EnableUDP {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("%s: resolve udp %s: %w", s.config.Name, addr, err)
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("%s: listen udp %s: %w", s.config.Name, addr, err)
		}
		s.udpConn = conn
	}

	close(s.ready)
	logger.Info(fmt.Sprintf("%s server listening", s.config.Name),
		"address", addr, "tcp", s.config.EnableTCP, "udp", s.config.EnableUDP)

	if s.config.EnableTCP {
		s.wg.Add(1)
		go s.serveTCP(ctx)
	}
	if s.config.EnableUDP {
		s.wg.Add(1)
		go s.serveUDP(ctx)
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	s.wg.Wait()
	return nil
}

// Ready returns a channel closed once every configured listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the bound TCP address, or "" if TCP is disabled or not
// yet bound.
func (s *Server) Addr() string {
	if s.tcpListener != nil {
		return s.tcpListener.Addr().String()
	}
	return ""
}

// UDPAddr returns the bound UDP address, or "" if UDP is disabled or not
// yet bound.
func (s *Server) UDPAddr() string {
	if s.udpConn != nil {
		return s.udpConn.LocalAddr().String()
	}
	return ""
}

// Stop closes every listener and waits for in-flight handlers to return.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		s.closeListeners()
	})
	s.wg.Wait()
}

func (s *Server) closeListeners() {
	if s.tcpListener != nil {
		_ = s.tcpListener.Close()
	}
	if s.udpConn != nil {
		_ = s.udpConn.Close()
	}
}

func (s *Server) serveUDP(ctx context.Context) {
	defer s.wg.Done()

	buf := make([]byte, udpMaxDatagram)
	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		if err := s.udpConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				continue
			}
		}

		n, remote, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.shutdown:
				return
			default:
				logger.Debug(s.config.Name+": udp read error", "error", err)
				continue
			}
		}

		msg := make([]byte, n)
		copy(msg, buf[:n])
		sender := remote.String()

		reply := s.dispatcher.Dispatch(ctx, msg, sender)
		if reply == nil {
			continue
		}
		if _, err := s.udpConn.WriteToUDP(reply, remote); err != nil {
			logger.Debug(s.config.Name+": udp write error", "sender", sender, "error", err)
		}
	}
}

func (s *Server) serveTCP(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.tcpListener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				logger.Debug(s.config.Name+": tcp accept error", "error", err)
				return
			}
		}

		select {
		case s.connSemaphore <- struct{}{}:
		default:
			logger.Debug(s.config.Name+": tcp connection limit reached", "client", conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() { <-s.connSemaphore }()
			s.handleTCPConn(ctx, c)
		}(conn)
	}
}

func (s *Server) handleTCPConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	sender := conn.RemoteAddr().String()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		default:
		}

		if err := conn.SetDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}

		var headerBuf [4]byte
		if _, err := io.ReadFull(conn, headerBuf[:]); err != nil {
			if !errors.Is(err, io.EOF) {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					return
				}
				logger.Debug(s.config.Name+": read fragment header error", "client", sender, "error", err)
			}
			return
		}

		header := binary.BigEndian.Uint32(headerBuf[:])
		if header&lastFragmentBit == 0 {
			logger.Warn(s.config.Name+": multi-fragment record rejected", "client", sender)
			return
		}
		length := header & 0x7FFFFFFF
		if length > maxFragmentSize {
			logger.Warn(s.config.Name+": fragment too large", "size", length, "client", sender)
			return
		}

		msg := make([]byte, length)
		if _, err := io.ReadFull(conn, msg); err != nil {
			logger.Debug(s.config.Name+": read rpc message error", "client", sender, "error", err)
			return
		}

		reply := s.dispatcher.Dispatch(ctx, msg, sender)
		if reply == nil {
			continue
		}

		framed := make([]byte, 4+len(reply))
		binary.BigEndian.PutUint32(framed[0:4], lastFragmentBit|uint32(len(reply)))
		copy(framed[4:], reply)

		if _, err := conn.Write(framed); err != nil {
			logger.Debug(s.config.Name+": write tcp reply error", "client", sender, "error", err)
			return
		}
	}
}
