package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkfs/nfsd/internal/alias"
	"github.com/brinkfs/nfsd/internal/fsadapter"
	"github.com/brinkfs/nfsd/internal/rpc"
)

func TestProgramName(t *testing.T) {
	assert.Equal(t, "portmap", programName(rpc.ProgramPortmap))
	assert.Equal(t, "mount", programName(rpc.ProgramMount))
	assert.Equal(t, "nfs", programName(rpc.ProgramNFS))
	assert.Equal(t, "unknown", programName(999999))
}

func TestOrUnknown(t *testing.T) {
	assert.Equal(t, "unknown", orUnknown(""))
	assert.Equal(t, "MNT", orUnknown("MNT"))
}

func TestLoadCacheStartsEmptyWhenFileAbsent(t *testing.T) {
	dir := t.TempDir()
	adapter := fsadapter.New(1000, 1000)
	resolver := alias.New(adapter)

	cache, err := loadCache(filepath.Join(dir, "missing_cache"), resolver, adapter)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.MountCount())
}

func TestSaveAndLoadCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mount_cache")
	adapter := fsadapter.New(1000, 1000)
	resolver := alias.New(adapter)

	cache, err := loadCache(path, resolver, adapter)
	require.NoError(t, err)

	require.NoError(t, saveCache(path, cache))
	assert.FileExists(t, path)

	reloaded, err := loadCache(path, resolver, adapter)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.MountCount())
}

func TestReadQuitCommandRecognizesQuitAndQ(t *testing.T) {
	for _, line := range []string{"quit", "q", "  q  "} {
		r, w, err := os.Pipe()
		require.NoError(t, err)

		quit := make(chan struct{})
		go readQuitCommand(r, quit)

		_, err = w.WriteString(line + "\n")
		require.NoError(t, err)
		w.Close()

		select {
		case <-quit:
		case <-time.After(2 * time.Second):
			t.Fatal("quit was never signalled")
		}
	}
}

func TestRootCommandRegistersConfigSurfaceFlags(t *testing.T) {
	cmd := GetRootCmd()
	assert.Equal(t, "nfsd", cmd.Use)

	for _, name := range []string{"listen.portmap", "listen.mount", "listen.nfs", "alias_file", "cache_file"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %s", name)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}
