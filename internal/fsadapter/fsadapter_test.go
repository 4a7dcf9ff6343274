package fsadapter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDirectory(t *testing.T) {
	dir := t.TempDir()
	a := New(0, 0)

	t.Run("DirectoryOpensAndIdentifies", func(t *testing.T) {
		d, err := a.OpenDirectory(dir)
		require.NoError(t, err)
		assert.Equal(t, dir, d.CanonicalPath())
		assert.NotZero(t, d.VolumeSerial())
	})

	t.Run("FileRejectedAsNotDir", func(t *testing.T) {
		file := filepath.Join(dir, "not-a-dir")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
		_, err := a.OpenDirectory(file)
		assert.Error(t, err)
	})

	t.Run("MissingPathFails", func(t *testing.T) {
		_, err := a.OpenDirectory(filepath.Join(dir, "nope"))
		assert.Error(t, err)
	})
}

func TestLookupChildAndResolvePath(t *testing.T) {
	dir := t.TempDir()
	a := New(0, 0)
	childPath := filepath.Join(dir, "child.txt")
	require.NoError(t, os.WriteFile(childPath, []byte("hi"), 0o644))

	obj, err := a.LookupChild(dir, "child.txt")
	require.NoError(t, err)
	assert.False(t, obj.IsDir)

	resolved, ok := a.ResolvePath(obj.FileID)
	require.True(t, ok)
	assert.Equal(t, childPath, resolved)

	t.Run("UnknownIDIsNotResolvable", func(t *testing.T) {
		unknown := obj.FileID
		unknown.Hi++ // POSIX ids always have Hi == 0, so this id was never registered
		_, ok := a.ResolvePath(unknown)
		assert.False(t, ok)
	})
}

func TestAttrReportsDefaultOwnerAndTicks(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	a := New(1000, 1000)
	attr, err := a.Attr(file)
	require.NoError(t, err)

	assert.False(t, attr.IsDir)
	assert.Equal(t, uint32(1000), attr.UID)
	assert.Equal(t, uint32(1000), attr.GID)
	assert.EqualValues(t, 5, attr.Size)
	assert.NotZero(t, attr.MTimeTicks)
}

func TestCreateReadWriteCommit(t *testing.T) {
	dir := t.TempDir()
	a := New(0, 0)

	obj, err := a.Create(dir, "new.txt", 0o644, false)
	require.NoError(t, err)
	assert.False(t, obj.IsDir)

	n, err := a.Write(obj.Path, 0, []byte("payload"), false)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.NoError(t, a.Commit(obj.Path))

	data, eof, err := a.Read(obj.Path, 0, 100)
	require.NoError(t, err)
	assert.True(t, eof)
	assert.Equal(t, "payload", string(data))

	t.Run("ShortReadWithinFileIsNotEOF", func(t *testing.T) {
		data, eof, err := a.Read(obj.Path, 0, 3)
		require.NoError(t, err)
		assert.False(t, eof)
		assert.Equal(t, "pay", string(data))
	})
}

func TestMkDirRemoveRmDirRename(t *testing.T) {
	dir := t.TempDir()
	a := New(0, 0)

	sub, err := a.MkDir(dir, "sub", 0o755)
	require.NoError(t, err)
	assert.True(t, sub.IsDir)

	_, err = a.Create(sub.Path, "leaf.txt", 0o644, false)
	require.NoError(t, err)

	t.Run("RmDirOfNonEmptyDirFails", func(t *testing.T) {
		assert.Error(t, a.RmDir(dir, "sub"))
	})

	require.NoError(t, a.Remove(sub.Path, "leaf.txt"))
	require.NoError(t, a.RmDir(dir, "sub"))

	t.Run("RenameMovesEntry", func(t *testing.T) {
		_, err := a.Create(dir, "a.txt", 0o644, false)
		require.NoError(t, err)
		require.NoError(t, a.Rename(dir, "a.txt", dir, "b.txt"))
		_, err = os.Stat(filepath.Join(dir, "b.txt"))
		assert.NoError(t, err)
	})
}

func TestReadDirIsSortedAndIdentifies(t *testing.T) {
	dir := t.TempDir()
	a := New(0, 0)
	for _, name := range []string{"zeta.txt", "alpha.txt", "mid.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	entries, err := a.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"alpha.txt", "mid.txt", "zeta.txt"},
		[]string{entries[0].Name, entries[1].Name, entries[2].Name})
}

func TestFSStatReportsNonZeroTotals(t *testing.T) {
	dir := t.TempDir()
	a := New(0, 0)

	total, free, avail, totalFiles, freeFiles, err := a.FSStat(dir)
	require.NoError(t, err)
	assert.NotZero(t, total)
	assert.NotZero(t, totalFiles)
	_ = free
	_ = avail
	_ = freeFiles
}

func TestSetSizeTruncates(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "trunc.txt")
	require.NoError(t, os.WriteFile(file, []byte("0123456789"), 0o644))

	a := New(0, 0)
	require.NoError(t, a.SetSize(file, 4))

	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.EqualValues(t, 4, info.Size())
}
