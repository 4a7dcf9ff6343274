// Package fsadapter is the host filesystem collaborator used by
// internal/mountcache (open-by-path, to mint a mount) and internal/nfsv3
// (open-by-id, attribute query, read/write/directory ops), backed by the
// real POSIX filesystem via os and golang.org/x/sys/unix.
//
// Every object this server hands a client a handle for is tracked in an
// in-memory id -> path cache: POSIX has no general-purpose "open this
// inode number" syscall, so a file_id is only resolvable back to a path
// once some prior LOOKUP/READDIR/OpenDirectory has observed it. This
// mirrors how handle-caching NFS servers without a persistent handle
// database behave: the cache is rebuilt lazily as clients traverse the
// tree, and a cold cache miss (e.g. right after a restart, before the
// client re-walks from the mount root) surfaces as ERR_STALE.
package fsadapter

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/brinkfs/nfsd/internal/mountcache"
	"golang.org/x/sys/unix"
)

// Adapter is the host filesystem adapter. DefaultUID/DefaultGID are
// reported for every object (spec.md §4.8.2: NFSv3 attributes always
// report uid=0, gid=0 unless configured otherwise, since this server
// doesn't map host owners to NFS identities).
type Adapter struct {
	DefaultUID uint32
	DefaultGID uint32

	mu   sync.RWMutex
	byID map[mountcache.FileID128]string
}

// New returns an Adapter reporting defaultUID/defaultGID as the owner of
// every file.
func New(defaultUID, defaultGID uint32) *Adapter {
	return &Adapter{
		DefaultUID: defaultUID,
		DefaultGID: defaultGID,
		byID:       make(map[mountcache.FileID128]string),
	}
}

// identify computes the stable (volume_serial, file_id) pair for path
// from its device/inode numbers and registers path in the id cache.
func (a *Adapter) identify(path string) (vol uint64, id mountcache.FileID128, err error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, mountcache.FileID128{}, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	vol = uint64(st.Dev)
	id = mountcache.FileID128{Lo: st.Ino}

	a.mu.Lock()
	a.byID[id] = path
	a.mu.Unlock()

	return vol, id, nil
}

// ResolvePath returns the host path last registered for id, or ok=false
// if the cache has no entry (the caller should treat this as ESTALE).
func (a *Adapter) ResolvePath(id mountcache.FileID128) (path string, ok bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	path, ok = a.byID[id]
	return path, ok
}

// dirHandle is the mountcache.Directory this adapter returns from
// OpenDirectory.
type dirHandle struct {
	path   string
	vol    uint64
	fileID mountcache.FileID128
}

func (d *dirHandle) CanonicalPath() string       { return d.path }
func (d *dirHandle) VolumeSerial() uint64        { return d.vol }
func (d *dirHandle) FileID() mountcache.FileID128 { return d.fileID }
func (d *dirHandle) Close() error                { return nil }

// OpenDirectory implements mountcache.FSAdapter: stat hostPath, require
// it to be a directory, and register its identity.
func (a *Adapter) OpenDirectory(hostPath string) (mountcache.Directory, error) {
	canonical, err := filepath.Abs(hostPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: canonical, Err: unix.ENOTDIR}
	}
	vol, id, err := a.identify(canonical)
	if err != nil {
		return nil, err
	}
	return &dirHandle{path: canonical, vol: vol, fileID: id}, nil
}

// CanOpen implements alias.OpenChecker: does hostPath exist and is it
// reachable at all (file or directory).
func (a *Adapter) CanOpen(hostPath string) bool {
	_, err := os.Stat(hostPath)
	return err == nil
}

// Object is a resolved filesystem object: its host path plus the
// identity a file handle embeds.
type Object struct {
	Path   string
	Vol    uint64
	FileID mountcache.FileID128
	IsDir  bool
}

// LookupChild resolves name within parentPath, registering its identity
// in the id cache so a later handle-based operation can resolve it.
func (a *Adapter) LookupChild(parentPath, name string) (Object, error) {
	childPath := filepath.Join(parentPath, name)
	info, err := os.Lstat(childPath)
	if err != nil {
		return Object{}, err
	}
	vol, id, err := a.identify(childPath)
	if err != nil {
		return Object{}, err
	}
	return Object{Path: childPath, Vol: vol, FileID: id, IsDir: info.IsDir()}, nil
}
