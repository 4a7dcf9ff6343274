package nfsv3

import (
	"github.com/brinkfs/nfsd/internal/fsadapter"
	"github.com/brinkfs/nfsd/internal/mountcache"
	"github.com/brinkfs/nfsd/internal/nfsstatus"
	"github.com/brinkfs/nfsd/internal/xdr"
)

// fileHandleMaxLen is RFC 1813's FHSIZE3.
const fileHandleMaxLen = 64

// resolved is the outcome of validating a file handle and locating the
// host path it names: every procedure's preamble (spec.md §4.8's "every
// procedure begins with handle validation").
type resolved struct {
	handle mountcache.FileHandle
	path   string
	attr   fsadapter.Attr
}

// decodeHandle reads a 64-byte opaque fhandle3 at the front of r.
func decodeHandle(r *xdr.Reader) (mountcache.FileHandle, bool) {
	data, _, ok := xdr.ReadOpaque(r, 0, fileHandleMaxLen)
	if !ok {
		return mountcache.FileHandle{}, false
	}
	return mountcache.DecodeFileHandle(data)
}

// resolve decodes, validates, and stats a file handle in one step.
// Per spec.md §4.8: handle parse/mount_id/volume_serial check failures
// map to ERR_BADHANDLE; a handle whose object the adapter's id cache has
// no path for (a cold cache miss, e.g. right after restart) maps to
// ERR_STALE rather than ERR_BADHANDLE — the handle format is fine, the
// resource behind it just isn't resolvable right now. A successful
// resolve also stats the object, since nearly every procedure needs its
// attributes for either the reply body or WCC data.
func (s *Server) resolve(h mountcache.FileHandle) (resolved, nfsstatus.NFS) {
	if _, ok := s.cache.ValidateHandle(h); !ok {
		return resolved{}, nfsstatus.ErrBadHandle
	}
	path, ok := s.fs.ResolvePath(h.FileID)
	if !ok {
		return resolved{}, nfsstatus.ErrStale
	}
	attr, err := s.fs.Attr(path)
	if err != nil {
		return resolved{}, nfsstatus.FromHostError(err)
	}
	return resolved{handle: h, path: path, attr: attr}, nfsstatus.OK
}

// resolveFromReader decodes a handle off r and resolves it in one call,
// the shape nearly every handler's first line needs.
func (s *Server) resolveFromReader(r *xdr.Reader) (resolved, nfsstatus.NFS) {
	h, ok := decodeHandle(r)
	if !ok {
		return resolved{}, nfsstatus.ErrBadHandle
	}
	return s.resolve(h)
}

// childHandle builds the file handle for an object found within dir:
// same mount_id/volume_serial as the parent (it's the same mount), the
// child's own file_id.
func childHandle(dir mountcache.FileHandle, fileID mountcache.FileID128) mountcache.FileHandle {
	return mountcache.FileHandle{
		MountID:      dir.MountID,
		VolumeSerial: dir.VolumeSerial,
		FileID:       fileID,
	}
}

func writeHandle(w *xdr.Writer, h mountcache.FileHandle) {
	raw := h.Encode()
	xdr.WriteOpaque(w, raw[:], fileHandleMaxLen)
}
