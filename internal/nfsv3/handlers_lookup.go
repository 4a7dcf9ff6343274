package nfsv3

import (
	"context"
	"strings"

	"github.com/brinkfs/nfsd/internal/fsadapter"
	"github.com/brinkfs/nfsd/internal/mountcache"
	"github.com/brinkfs/nfsd/internal/nfsstatus"
	"github.com/brinkfs/nfsd/internal/rpc"
	"github.com/brinkfs/nfsd/internal/xdr"
)

// maxNameLen is RFC 1813's NFS3_MAXNAMLEN / MAXNAMLEN.
const maxNameLen = 255

// maxReadlinkLen is this server's readlink data<> bound, generous enough
// for any real symlink target.
const maxReadlinkLen = 4096

func decodeHandleAndName(r *xdr.Reader) (mountcache.FileHandle, string, bool) {
	raw, wireSize, ok := xdr.ReadOpaque(r, 0, fileHandleMaxLen)
	if !ok {
		return mountcache.FileHandle{}, "", false
	}
	h, ok := mountcache.DecodeFileHandle(raw)
	if !ok {
		return mountcache.FileHandle{}, "", false
	}
	name, _, ok := xdr.ReadOpaque(r, wireSize, maxNameLen)
	if !ok || !r.Valid() {
		return mountcache.FileHandle{}, "", false
	}
	return h, string(name), true
}

// handleLookup implements LOOKUP: "." returns the directory handle
// itself; names containing a path separator are rejected (spec.md
// §4.8 row 3); otherwise resolve name as a direct child of dir_fh.
func (s *Server) handleLookup(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	h, name, ok := decodeHandleAndName(params)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}

	dir, status := s.resolve(h)
	if status != nfsstatus.OK {
		return encodeLookupFailure(status, dir), nil
	}
	if !dir.attr.IsDir {
		return encodeLookupFailure(nfsstatus.ErrNotDir, dir), nil
	}

	if name == "." {
		return encodeLookupSuccess(h, dir.attr, dir.attr), nil
	}
	if strings.ContainsAny(name, "/\\") {
		return encodeLookupFailure(nfsstatus.ErrInval, dir), nil
	}

	child, err := s.fs.LookupChild(dir.path, name)
	if err != nil {
		return encodeLookupFailure(nfsstatus.FromHostError(err), dir), nil
	}
	childAttr, err := s.fs.Attr(child.Path)
	if err != nil {
		return encodeLookupFailure(nfsstatus.FromHostError(err), dir), nil
	}

	fh := childHandle(h, child.FileID)
	return encodeLookupSuccess(fh, childAttr, dir.attr), nil
}

// encodeLookupSuccess writes LOOKUP3resok: {fh, obj post_op_attr,
// dir post_op_attr}.
func encodeLookupSuccess(fh mountcache.FileHandle, obj, dir fsadapter.Attr) []byte {
	w := xdr.NewWriter(4 + (4 + fileHandleMaxLen) + 4 + fattr3WireSize + 4 + fattr3WireSize)
	w.AppendU32(uint32(nfsstatus.OK))
	writeHandle(w, fh)
	encodePostOpAttr(w, obj)
	encodePostOpAttr(w, dir)
	return w.Bytes()
}

// encodeLookupFailure writes LOOKUP3resfail: {dir post_op_attr}. When
// the directory handle itself failed to resolve, dir.attr is the zero
// value and its post_op_attr is reported absent.
func encodeLookupFailure(status nfsstatus.NFS, dir resolved) []byte {
	w := xdr.NewWriter(8 + fattr3WireSize)
	w.AppendU32(uint32(status))
	if dir.path == "" {
		encodeAbsentPostOpAttr(w)
	} else {
		encodePostOpAttr(w, dir.attr)
	}
	return w.Bytes()
}

func (s *Server) handleAccess(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	raw, wireSize, ok := xdr.ReadOpaque(params, 0, fileHandleMaxLen)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	h, ok := mountcache.DecodeFileHandle(raw)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	requested := params.GetU32BE(wireSize)
	if !params.Valid() {
		return nil, rpc.ErrGarbageArgs
	}

	res, status := s.resolve(h)
	if status != nfsstatus.OK {
		return encodeStatusWithAbsentPostOp(status), nil
	}

	w := xdr.NewWriter(4 + 4 + fattr3WireSize + 4)
	w.AppendU32(uint32(nfsstatus.OK))
	encodePostOpAttr(w, res.attr)
	w.AppendU32(accessMask(res.attr, requested))
	return w.Bytes(), nil
}

// handleReadlink implements READLINK. spec.md §4.8 row 5 calls this
// "empty until the filesystem adapter is wired" — it now is, so a real
// symlink target is returned via os.Readlink.
func (s *Server) handleReadlink(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	res, status := s.resolveFromReader(params)
	if status != nfsstatus.OK {
		return encodeStatusWithAbsentPostOp(status), nil
	}
	if !res.attr.IsSymlink {
		return encodeStatusWithAbsentPostOp(nfsstatus.ErrInval), nil
	}

	target, err := s.fs.ReadLink(res.path)
	if err != nil {
		return encodeStatusWithAbsentPostOp(nfsstatus.FromHostError(err)), nil
	}

	w := xdr.NewWriter(4 + 4 + fattr3WireSize + 4 + len(target) + 4)
	w.AppendU32(uint32(nfsstatus.OK))
	encodePostOpAttr(w, res.attr)
	xdr.WriteOpaque(w, []byte(target), maxReadlinkLen)
	return w.Bytes(), nil
}

func encodeStatusWithAbsentPostOp(status nfsstatus.NFS) []byte {
	w := xdr.NewWriter(8)
	w.AppendU32(uint32(status))
	encodeAbsentPostOpAttr(w)
	return w.Bytes()
}
