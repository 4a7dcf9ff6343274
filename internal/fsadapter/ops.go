package fsadapter

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/brinkfs/nfsd/internal/mountcache"
	"github.com/brinkfs/nfsd/internal/wintime"
	"golang.org/x/sys/unix"
)

// Attr is a host object's attributes in the shape internal/nfsv3 maps to
// fattr3 (spec.md §4.8.2). Timestamps are reported as 100-ns ticks since
// 1601 — the contract spec.md describes the host adapter producing —
// computed here from the POSIX stat timestamps via internal/wintime's
// Unix-to-ticks direction, so the NFSv3 layer's ticks-to-nfstime3
// conversion (the same package's other direction) has the call site
// spec.md's algorithm describes even though this adapter is POSIX-native.
type Attr struct {
	IsDir      bool
	IsSymlink  bool
	Mode       uint32
	NLink      uint32
	UID        uint32
	GID        uint32
	Size       uint64
	Used       uint64
	Vol        uint64
	FileID     mountcache.FileID128
	ATimeTicks uint64
	MTimeTicks uint64
	CTimeTicks uint64
}

func (a *Adapter) attrFromStat(st *unix.Stat_t) Attr {
	return Attr{
		IsDir:      st.Mode&unix.S_IFMT == unix.S_IFDIR,
		IsSymlink:  st.Mode&unix.S_IFMT == unix.S_IFLNK,
		Mode:       uint32(st.Mode & 0o7777),
		NLink:      uint32(st.Nlink),
		UID:        a.DefaultUID,
		GID:        a.DefaultGID,
		Size:       uint64(st.Size),
		Used:       uint64(st.Blocks) * 512,
		Vol:        uint64(st.Dev),
		FileID:     mountcache.FileID128{Lo: st.Ino},
		ATimeTicks: wintime.FromUnix(uint32(st.Atim.Sec), uint32(st.Atim.Nsec)),
		MTimeTicks: wintime.FromUnix(uint32(st.Mtim.Sec), uint32(st.Mtim.Nsec)),
		CTimeTicks: wintime.FromUnix(uint32(st.Ctim.Sec), uint32(st.Ctim.Nsec)),
	}
}

// Attr stats path and returns its attributes.
func (a *Adapter) Attr(path string) (Attr, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Attr{}, &os.PathError{Op: "stat", Path: path, Err: err}
	}
	return a.attrFromStat(&st), nil
}

// SetSize truncates the file at path, implementing SETATTR's size field
// (spec.md §4.8.1 step 2: "apply size truncation (files only)").
func (a *Adapter) SetSize(path string, size uint64) error {
	return os.Truncate(path, int64(size))
}

// SetTimes applies explicit or current-time atime/mtime to path.
// useCurrent{A,M}time request "current server time" (SET_TO_SERVER_TIME)
// rather than the caller-supplied value.
func (a *Adapter) SetTimes(path string, atimeTicks, mtimeTicks uint64, useCurrentAtime, useCurrentMtime bool) error {
	var atime, mtime unix.Timespec
	if useCurrentAtime {
		atime = unix.Timespec{Sec: 0, Nsec: unix.UTIME_NOW}
	} else {
		sec, nsec := wintime.ToUnix(atimeTicks)
		atime = unix.Timespec{Sec: int64(sec), Nsec: int64(nsec)}
	}
	if useCurrentMtime {
		mtime = unix.Timespec{Sec: 0, Nsec: unix.UTIME_NOW}
	} else {
		sec, nsec := wintime.ToUnix(mtimeTicks)
		mtime = unix.Timespec{Sec: int64(sec), Nsec: int64(nsec)}
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, path, []unix.Timespec{atime, mtime}, 0)
}

// Read reads up to count bytes at offset, reporting eof when the read
// stopped short of count because it reached the end of the file.
func (a *Adapter) Read(path string, offset int64, count int) (data []byte, eof bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer f.Close()

	buf := make([]byte, count)
	n, err := f.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, false, err
	}
	return buf[:n], err == io.EOF || n < count, nil
}

// Write writes data at offset, truncating the file first when offset is
// zero (the NFSv3 WRITE contract this server follows: "if offset==0
// truncate first else seek"). When sync is true, the write is flushed to
// stable storage before returning (NFS's FILE_SYNC/DATA_SYNC stable
// field; UNSTABLE just writes through the OS page cache).
func (a *Adapter) Write(path string, offset int64, data []byte, sync bool) (n int, err error) {
	flags := os.O_WRONLY
	if offset == 0 {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err = f.WriteAt(data, offset)
	if err != nil {
		return n, err
	}
	if sync {
		if err := f.Sync(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Commit flushes path to stable storage (the NFS COMMIT procedure).
func (a *Adapter) Commit(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// Create creates a new regular file named name in parentPath.
// Exclusive creation (NFS CREATE's EXCLUSIVE mode) is out of scope per
// spec.md's Non-goals; this always uses UNCHECKED/GUARDED semantics.
func (a *Adapter) Create(parentPath, name string, mode uint32, exclusive bool) (Object, error) {
	childPath := filepath.Join(parentPath, name)
	flags := os.O_WRONLY | os.O_CREATE
	if exclusive {
		flags |= os.O_EXCL
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(childPath, flags, os.FileMode(mode&0o7777))
	if err != nil {
		return Object{}, err
	}
	f.Close()
	vol, id, err := a.identify(childPath)
	if err != nil {
		return Object{}, err
	}
	return Object{Path: childPath, Vol: vol, FileID: id, IsDir: false}, nil
}

// MkDir creates a new directory named name in parentPath.
func (a *Adapter) MkDir(parentPath, name string, mode uint32) (Object, error) {
	childPath := filepath.Join(parentPath, name)
	if err := os.Mkdir(childPath, os.FileMode(mode&0o7777)); err != nil {
		return Object{}, err
	}
	vol, id, err := a.identify(childPath)
	if err != nil {
		return Object{}, err
	}
	return Object{Path: childPath, Vol: vol, FileID: id, IsDir: true}, nil
}

// Remove deletes the non-directory entry name from parentPath (REMOVE).
func (a *Adapter) Remove(parentPath, name string) error {
	return os.Remove(filepath.Join(parentPath, name))
}

// RmDir deletes the empty directory entry name from parentPath (RMDIR).
func (a *Adapter) RmDir(parentPath, name string) error {
	return unix.Rmdir(filepath.Join(parentPath, name))
}

// Rename moves fromParent/fromName to toParent/toName (RENAME).
func (a *Adapter) Rename(fromParent, fromName, toParent, toName string) error {
	return os.Rename(filepath.Join(fromParent, fromName), filepath.Join(toParent, toName))
}

// ReadLink returns the target of a symlink at path.
func (a *Adapter) ReadLink(path string) (string, error) {
	return os.Readlink(path)
}

// DirEntry is one entry returned by ReadDir: name plus the identity a
// READDIRPLUS entry needs.
type DirEntry struct {
	Name   string
	Vol    uint64
	FileID mountcache.FileID128
	IsDir  bool
}

// ReadDir lists path's entries in a stable (name-sorted) order, so
// pagination cookies assigned by internal/nfsv3 stay consistent across
// a multi-request READDIR sequence for the same cookie verifier.
func (a *Adapter) ReadDir(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	result := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		childPath := filepath.Join(path, e.Name())
		vol, id, err := a.identify(childPath)
		if err != nil {
			continue // vanished between ReadDir and Stat: skip rather than fail the whole listing
		}
		result = append(result, DirEntry{Name: e.Name(), Vol: vol, FileID: id, IsDir: e.IsDir()})
	}
	return result, nil
}

// FSStat reports free/total space for the filesystem containing path
// (FSSTAT), via statfs.
func (a *Adapter) FSStat(path string) (totalBytes, freeBytes, availBytes uint64, totalFiles, freeFiles uint64, err error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, 0, 0, 0, 0, err
	}
	blockSize := uint64(st.Bsize)
	return st.Blocks * blockSize, st.Bfree * blockSize, st.Bavail * blockSize, st.Files, st.Ffree, nil
}
