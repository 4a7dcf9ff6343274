package mountcache

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDir struct {
	path   string
	serial uint64
	fileID FileID128
	closed bool
}

func (d *stubDir) CanonicalPath() string  { return d.path }
func (d *stubDir) VolumeSerial() uint64   { return d.serial }
func (d *stubDir) FileID() FileID128      { return d.fileID }
func (d *stubDir) Close() error           { d.closed = true; return nil }

type stubAdapter struct {
	dirs    map[string]*stubDir
	opens   int
	missing map[string]bool
}

func newStubAdapter() *stubAdapter {
	return &stubAdapter{dirs: make(map[string]*stubDir), missing: make(map[string]bool)}
}

func (a *stubAdapter) add(path string, serial uint64, fileID FileID128) {
	a.dirs[path] = &stubDir{path: path, serial: serial, fileID: fileID}
}

func (a *stubAdapter) OpenDirectory(hostPath string) (Directory, error) {
	a.opens++
	if a.missing[hostPath] {
		return nil, errors.New("no such directory")
	}
	d, ok := a.dirs[hostPath]
	if !ok {
		return nil, errors.New("no such directory")
	}
	return d, nil
}

type stubResolver map[string]string

func (r stubResolver) Resolve(query string) (string, bool) {
	host, ok := r[query]
	return host, ok
}

func TestMountFindOrInsert(t *testing.T) {
	adapter := newStubAdapter()
	adapter.add(`C:\data`, 7, FileID128{Lo: 1})
	resolver := stubResolver{"/exports/data": `C:\data`}
	cache := New(resolver, adapter)

	t.Run("FirstMountOpensAndMints", func(t *testing.T) {
		h, err := cache.Mount("client1", "/exports/data")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), h.MountID)
		assert.Equal(t, uint64(7), h.VolumeSerial)
		assert.Equal(t, 1, adapter.opens)
	})

	t.Run("SameQueryPathReusesMountWithoutReopening", func(t *testing.T) {
		h, err := cache.Mount("client2", "/exports/data")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), h.MountID)
		assert.Equal(t, 1, adapter.opens)
	})

	t.Run("DifferentQueryPathSameHostPathSharesMount", func(t *testing.T) {
		resolver["/alt/alias"] = `C:\data`
		h, err := cache.Mount("client3", "/alt/alias")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), h.MountID)
		assert.Equal(t, 1, adapter.opens)
	})

	t.Run("UnresolvableQueryPathFails", func(t *testing.T) {
		_, err := cache.Mount("client1", "/nowhere")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("UnopenableHostPathFails", func(t *testing.T) {
		resolver["/broken"] = `C:\broken`
		adapter.missing[`C:\broken`] = true
		_, err := cache.Mount("client1", "/broken")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestValidateHandle(t *testing.T) {
	adapter := newStubAdapter()
	adapter.add(`C:\data`, 7, FileID128{Lo: 1})
	resolver := stubResolver{"/exports/data": `C:\data`}
	cache := New(resolver, adapter)
	h, err := cache.Mount("client1", "/exports/data")
	require.NoError(t, err)

	t.Run("MatchingMountAndSerialIsValid", func(t *testing.T) {
		root, ok := cache.ValidateHandle(h)
		assert.True(t, ok)
		assert.Equal(t, `C:\data`, root)
	})

	t.Run("UnknownMountIDIsInvalid", func(t *testing.T) {
		_, ok := cache.ValidateHandle(FileHandle{MountID: 999})
		assert.False(t, ok)
	})

	t.Run("MismatchedVolumeSerialIsInvalid", func(t *testing.T) {
		bad := h
		bad.VolumeSerial++
		_, ok := cache.ValidateHandle(bad)
		assert.False(t, ok)
	})
}

func TestUnmountAndUnmountAll(t *testing.T) {
	adapter := newStubAdapter()
	adapter.add(`C:\data`, 7, FileID128{Lo: 1})
	resolver := stubResolver{"/exports/data": `C:\data`}
	cache := New(resolver, adapter)

	_, err := cache.Mount("client1", "/exports/data")
	require.NoError(t, err)
	_, err = cache.Mount("client2", "/exports/data")
	require.NoError(t, err)

	t.Run("UnmountRemovesOnlyThatClient", func(t *testing.T) {
		cache.Unmount("client1", "/exports/data")
		_, stillBound := cache.clientMounts["client1"]
		assert.False(t, stillBound)
		_, otherBound := cache.clientMounts["client2"]
		assert.True(t, otherBound)
	})

	t.Run("UnmountOfUnknownPathIsNoop", func(t *testing.T) {
		cache.Unmount("client2", "/never/mounted")
		_, ok := cache.clientMounts["client2"]
		assert.True(t, ok)
	})

	t.Run("UnmountAllDropsEveryBinding", func(t *testing.T) {
		_, err := cache.Mount("client2", "/other")
		_ = err
		cache.UnmountAll("client2")
		_, ok := cache.clientMounts["client2"]
		assert.False(t, ok)
	})
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	adapter := newStubAdapter()
	adapter.add(`C:\data`, 7, FileID128{Lo: 1})
	adapter.add(`C:\gone`, 9, FileID128{Lo: 2})
	resolver := stubResolver{"/exports/data": `C:\data`, "/exports/gone": `C:\gone`}
	cache := New(resolver, adapter)

	_, err := cache.Mount("client1", "/exports/data")
	require.NoError(t, err)
	_, err = cache.Mount("client1", "/exports/gone")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cache.Save(&buf))

	// Simulate the second mount's host path becoming unreachable across
	// a restart.
	delete(adapter.dirs, `C:\gone`)
	adapter.missing[`C:\gone`] = true

	restored, err := Restore(&buf, resolver, adapter)
	require.NoError(t, err)

	t.Run("ReachableMountSurvivesRestore", func(t *testing.T) {
		h, err := restored.Mount("client2", "/exports/data")
		require.NoError(t, err)
		assert.Equal(t, uint64(1), h.MountID)
	})

	t.Run("UnreachableMountIsDropped", func(t *testing.T) {
		_, ok := restored.mounts[2]
		assert.False(t, ok)
	})

	t.Run("NextMountIDAvoidsDroppedID", func(t *testing.T) {
		assert.Equal(t, uint64(3), restored.nextMountID)
	})

	t.Run("ClientBindingForReachableMountSurvives", func(t *testing.T) {
		_, ok := restored.clientMounts["client1"]
		require.True(t, ok)
		_, bound := restored.clientMounts["client1"][1]
		assert.True(t, bound)
		_, stillHasGone := restored.clientMounts["client1"][2]
		assert.False(t, stillHasGone)
	})
}
