package nfsv3

import (
	"context"

	"github.com/brinkfs/nfsd/internal/fsadapter"
	"github.com/brinkfs/nfsd/internal/mountcache"
	"github.com/brinkfs/nfsd/internal/nfsstatus"
	"github.com/brinkfs/nfsd/internal/rpc"
	"github.com/brinkfs/nfsd/internal/xdr"
)

// stable_how values, RFC 1813 §3.3.8.
const (
	stableUnstable  = 0
	stableDataSync  = 1
	stableFileSync  = 2
)

// maxReadCount bounds a single READ reply's data, matching the read_max
// this server advertises via FSINFO (spec.md §4.8 row 19).
const maxReadCount = 32 * 1024

func (s *Server) handleRead(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	raw, wireSize, ok := xdr.ReadOpaque(params, 0, fileHandleMaxLen)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	h, ok := mountcache.DecodeFileHandle(raw)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	offset := params.GetU64BE(wireSize)
	count := params.GetU32BE(wireSize + 8)
	if !params.Valid() {
		return nil, rpc.ErrGarbageArgs
	}
	if count > maxReadCount {
		count = maxReadCount
	}

	res, status := s.resolve(h)
	if status != nfsstatus.OK {
		return encodeStatusWithAbsentPostOp(status), nil
	}
	if res.attr.IsDir {
		return encodeReadFailure(nfsstatus.ErrIsDir, res.attr), nil
	}

	data, eof, err := s.fs.Read(res.path, int64(offset), int(count))
	if err != nil {
		return encodeReadFailure(nfsstatus.FromHostError(err), res.attr), nil
	}

	w := xdr.NewWriter(4 + 4 + fattr3WireSize + 4 + 4 + len(data) + 4)
	w.AppendU32(uint32(nfsstatus.OK))
	encodePostOpAttr(w, res.attr)
	w.AppendU32(uint32(len(data)))
	w.AppendBool(eof)
	xdr.WriteOpaque(w, data, maxReadCount)
	return w.Bytes(), nil
}

func encodeReadFailure(status nfsstatus.NFS, attr fsadapter.Attr) []byte {
	w := xdr.NewWriter(8 + fattr3WireSize)
	w.AppendU32(uint32(status))
	encodePostOpAttr(w, attr)
	return w.Bytes()
}

func (s *Server) handleWrite(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	raw, wireSize, ok := xdr.ReadOpaque(params, 0, fileHandleMaxLen)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	h, ok := mountcache.DecodeFileHandle(raw)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	off := wireSize
	offset := params.GetU64BE(off)
	off += 8
	_ = params.GetU32BE(off) // count: redundant with len(data), not separately used
	off += 4
	stable := params.GetU32BE(off)
	off += 4
	data, _, ok := xdr.ReadOpaque(params, off, 1<<20)
	if !ok || !params.Valid() {
		return nil, rpc.ErrGarbageArgs
	}

	before, status := s.resolve(h)
	if status != nfsstatus.OK {
		return encodeStatusWithEmptyWcc(status), nil
	}
	if before.attr.IsDir {
		return encodeWriteFailure(nfsstatus.ErrIsDir, before.attr), nil
	}

	n, err := s.fs.Write(before.path, int64(offset), data, stable != stableUnstable)
	if err != nil {
		return encodeWriteFailure(nfsstatus.FromHostError(err), before.attr), nil
	}

	after, afterStatus := s.resolve(h)
	afterAttr := before.attr
	if afterStatus == nfsstatus.OK {
		afterAttr = after.attr
	}

	committed := uint32(stableFileSync)
	if stable == stableUnstable {
		committed = stableUnstable
	}

	w := xdr.NewWriter(4 + wccDataEmptySize + 4 + 4 + 8)
	w.AppendU32(uint32(nfsstatus.OK))
	encodeWcc(w, before.attr, true, afterAttr, true)
	w.AppendU32(uint32(n))
	w.AppendU32(committed)
	w.AppendBytes(s.verifier[:])
	return w.Bytes(), nil
}

func encodeWriteFailure(status nfsstatus.NFS, attr fsadapter.Attr) []byte {
	w := xdr.NewWriter(4 + wccDataEmptySize)
	w.AppendU32(uint32(status))
	encodeWcc(w, attr, true, attr, true)
	return w.Bytes()
}

// handleCommit implements COMMIT: flush to stable storage and return
// wcc_data plus the server's constant write-verifier, which a client
// compares against the verifier it saw on prior UNSTABLE writes to
// detect a server restart (RFC 1813 §3.3.21).
func (s *Server) handleCommit(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	res, status := s.resolveFromReader(params)
	if status != nfsstatus.OK {
		return encodeStatusWithEmptyWcc(status), nil
	}

	if err := s.fs.Commit(res.path); err != nil {
		return encodeWriteFailure(nfsstatus.FromHostError(err), res.attr), nil
	}

	w := xdr.NewWriter(4 + wccDataEmptySize + 8)
	w.AppendU32(uint32(nfsstatus.OK))
	encodeWcc(w, res.attr, true, res.attr, true)
	w.AppendBytes(s.verifier[:])
	return w.Bytes(), nil
}
