package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brinkfs/nfsd/internal/alias"
)

type alwaysOpenable struct{}

func (alwaysOpenable) CanOpen(string) bool { return true }

func TestAliasWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.conf")
	require.NoError(t, os.WriteFile(path, []byte("/exports /srv\n"), 0o644))

	resolver := alias.New(alwaysOpenable{})
	w, err := NewAliasWatcher(path, resolver)
	require.NoError(t, err)
	defer w.Close()

	host, ok := resolver.Resolve("/exports")
	require.True(t, ok)
	assert.Equal(t, "/srv", host)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(path, []byte("/exports /srv2\n"), 0o644))

	assert.Eventually(t, func() bool {
		host, ok := resolver.Resolve("/exports")
		return ok && host == "/srv2"
	}, 2*time.Second, 10*time.Millisecond)
}
