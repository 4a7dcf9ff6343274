// Package mountcache implements the mount session cache of spec.md §4.7:
// the mapping from client-visible query paths and file handles to
// host-filesystem directories, with MNT find-or-insert semantics and
// UMNT/UMNTALL membership tracking.
package mountcache

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Mount when the query path doesn't resolve
// to any alias, or the resolved host path can't be opened.
var ErrNotFound = errors.New("mountcache: path not found")

// Directory is a host adapter's open handle on a mounted directory: its
// canonical host path and the stable volume/file identity that seeds the
// root file handle for that mount (spec.md §3's "open-by-path" operation).
type Directory interface {
	CanonicalPath() string
	VolumeSerial() uint64
	FileID() FileID128
	Close() error
}

// FSAdapter is the host filesystem collaborator the cache needs to mint
// a mount: opening a host path and reopening one recovered from a
// persisted cache file. Concrete implementation: internal/fsadapter.
type FSAdapter interface {
	OpenDirectory(hostPath string) (Directory, error)
}

// Resolver is the alias-resolution collaborator (internal/alias.Resolver
// satisfies this structurally).
type Resolver interface {
	Resolve(query string) (hostPath string, ok bool)
}

type mountEntry struct {
	dir      Directory
	handle   FileHandle
	hostPath string
	clients  map[string]struct{}
}

// Cache is the mount_map/windows_map/query_map/client_mounts data model
// of spec.md §4.7, guarded by a single exclusive lock (spec.md §5: "a
// single lock serializes all cache mutations; no fine-grained locking is
// required").
type Cache struct {
	mu sync.Mutex

	mounts       map[uint64]*mountEntry    // mount_map: mount_id -> entry
	byHostPath   map[string]uint64         // windows_map: host_path -> mount_id
	byQueryPath  map[string]uint64         // query_map: query_path -> mount_id
	clientMounts map[string]map[uint64]struct{} // client_mounts: client -> set<mount_id>
	nextMountID  uint64

	resolver Resolver
	adapter  FSAdapter
}

// New returns an empty cache with mount ids allocated starting at 1 (0 is
// reserved so a zeroed FileHandle is never mistaken for a real mount).
func New(resolver Resolver, adapter FSAdapter) *Cache {
	return &Cache{
		mounts:       make(map[uint64]*mountEntry),
		byHostPath:   make(map[string]uint64),
		byQueryPath:  make(map[string]uint64),
		clientMounts: make(map[string]map[uint64]struct{}),
		nextMountID:  1,
		resolver:     resolver,
		adapter:      adapter,
	}
}

// Mount implements the MNT find-or-insert algorithm of spec.md §4.7
// steps 1-5: query_map hit -> rebind and return; else resolve the alias
// and check windows_map -> rebind and return; else open the directory
// and mint a fresh mount_id.
func (c *Cache) Mount(client, queryPath string) (FileHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mountID, ok := c.byQueryPath[queryPath]; ok {
		c.bindLocked(client, mountID)
		return c.mounts[mountID].handle, nil
	}

	hostPath, ok := c.resolver.Resolve(queryPath)
	if !ok {
		return FileHandle{}, ErrNotFound
	}

	if mountID, ok := c.byHostPath[hostPath]; ok {
		c.byQueryPath[queryPath] = mountID
		c.bindLocked(client, mountID)
		return c.mounts[mountID].handle, nil
	}

	dir, err := c.adapter.OpenDirectory(hostPath)
	if err != nil {
		return FileHandle{}, ErrNotFound
	}

	mountID := c.nextMountID
	c.nextMountID++
	handle := FileHandle{MountID: mountID, VolumeSerial: dir.VolumeSerial(), FileID: dir.FileID()}
	entry := &mountEntry{
		dir:      dir,
		handle:   handle,
		hostPath: dir.CanonicalPath(),
		clients:  make(map[string]struct{}),
	}
	c.mounts[mountID] = entry
	c.byHostPath[entry.hostPath] = mountID
	c.byQueryPath[queryPath] = mountID
	c.bindLocked(client, mountID)
	return handle, nil
}

// Unmount implements UMNT: drop client's membership in the mount that
// queryPath currently resolves to, if any. Per spec.md §4.7, an
// unrecognized query path is a silent no-op (UMNT has no error status).
func (c *Cache) Unmount(client, queryPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mountID, ok := c.byQueryPath[queryPath]
	if !ok {
		return
	}
	c.unbindLocked(client, mountID)
}

// UnmountAll implements UMNTALL: drop every mount membership recorded for
// client.
func (c *Cache) UnmountAll(client string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for mountID := range c.clientMounts[client] {
		c.unbindLocked(client, mountID)
	}
}

// ValidateHandle implements I4: a handle is valid iff its mount_id exists
// and the reported volume_serial matches the cached one. On success it
// returns the mount's host directory path, from which the caller (the
// NFSv3 layer) opens the specific file_id via the fsadapter.
func (c *Cache) ValidateHandle(h FileHandle) (hostRoot string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, present := c.mounts[h.MountID]
	if !present || entry.handle.VolumeSerial != h.VolumeSerial {
		return "", false
	}
	return entry.hostPath, true
}

// MountCount returns the number of mounts currently held in the cache,
// for the active-mounts gauge.
func (c *Cache) MountCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mounts)
}

// RootHandle returns the file handle of the directory mounted as
// mountID, used when the NFSv3 layer needs to re-derive a handle for the
// mount root itself (e.g. GETATTR on the handle MNT returned).
func (c *Cache) RootHandle(mountID uint64) (FileHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.mounts[mountID]
	if !ok {
		return FileHandle{}, false
	}
	return entry.handle, true
}

func (c *Cache) bindLocked(client string, mountID uint64) {
	set, ok := c.clientMounts[client]
	if !ok {
		set = make(map[uint64]struct{})
		c.clientMounts[client] = set
	}
	set[mountID] = struct{}{}
	c.mounts[mountID].clients[client] = struct{}{}
}

func (c *Cache) unbindLocked(client string, mountID uint64) {
	if set, ok := c.clientMounts[client]; ok {
		delete(set, mountID)
		if len(set) == 0 {
			delete(c.clientMounts, client)
		}
	}
	if entry, ok := c.mounts[mountID]; ok {
		delete(entry.clients, client)
	}
}
