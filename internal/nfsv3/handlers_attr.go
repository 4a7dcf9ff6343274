package nfsv3

import (
	"context"

	"github.com/brinkfs/nfsd/internal/fsadapter"
	"github.com/brinkfs/nfsd/internal/mountcache"
	"github.com/brinkfs/nfsd/internal/nfsstatus"
	"github.com/brinkfs/nfsd/internal/rpc"
	"github.com/brinkfs/nfsd/internal/wintime"
	"github.com/brinkfs/nfsd/internal/xdr"
)

// time_how values, RFC 1813 §2.6.
const (
	timeDontChange      = 0
	timeSetToServerTime = 1
	timeSetToClientTime = 2
)

func (s *Server) handleGetAttr(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	res, status := s.resolveFromReader(params)
	if status != nfsstatus.OK {
		return encodeStatusOnly(status), nil
	}
	w := xdr.NewWriter(4 + fattr3WireSize)
	w.AppendU32(uint32(nfsstatus.OK))
	encodeFattr3(w, res.attr)
	return w.Bytes(), nil
}

// sattrArgs is the decoded sattr3 + sattrguard3 SETATTR carries.
type sattrArgs struct {
	sizeSet bool
	size    uint64

	atimeHow  uint32
	atimeSec  uint32
	atimeNsec uint32

	mtimeHow  uint32
	mtimeSec  uint32
	mtimeNsec uint32

	guardCtimeSet  bool
	guardCtimeSec  uint32
	guardCtimeNsec uint32
}

// decodeSattr3 decodes SETATTR3args' sattr3 (mode/uid/gid/size/atime/
// mtime, each a discriminated union) followed by sattrguard3. Only the
// fields spec.md §4.8 names (size, atime/mtime, guard_ctime) are acted
// on by the handler; mode/uid/gid are decoded (to keep the cursor
// correctly positioned for what follows) but not applied, since this
// server doesn't expose per-object ownership/permission changes.
func decodeSattr3(r *xdr.Reader) (sattrArgs, bool) {
	off := 0

	modeSet := r.GetU32BE(off) != 0
	off += 4
	if modeSet {
		off += 4
	}

	uidSet := r.GetU32BE(off) != 0
	off += 4
	if uidSet {
		off += 4
	}

	gidSet := r.GetU32BE(off) != 0
	off += 4
	if gidSet {
		off += 4
	}

	var a sattrArgs
	a.sizeSet = r.GetU32BE(off) != 0
	off += 4
	if a.sizeSet {
		a.size = r.GetU64BE(off)
		off += 8
	}

	a.atimeHow = r.GetU32BE(off)
	off += 4
	if a.atimeHow == timeSetToClientTime {
		a.atimeSec = r.GetU32BE(off)
		a.atimeNsec = r.GetU32BE(off + 4)
		off += 8
	}

	a.mtimeHow = r.GetU32BE(off)
	off += 4
	if a.mtimeHow == timeSetToClientTime {
		a.mtimeSec = r.GetU32BE(off)
		a.mtimeNsec = r.GetU32BE(off + 4)
		off += 8
	}

	a.guardCtimeSet = r.GetU32BE(off) != 0
	off += 4
	if a.guardCtimeSet {
		a.guardCtimeSec = r.GetU32BE(off)
		a.guardCtimeNsec = r.GetU32BE(off + 4)
		off += 8
	}

	if !r.Valid() {
		return sattrArgs{}, false
	}
	return a, true
}

// handleSetAttr implements SETATTR: decode the handle and sattr3/guard,
// verify guard_ctime if present, apply size truncation and atime/mtime
// updates (server time or client-supplied time; a time left at
// DONT_CHANGE keeps its current value), and mirror wcc_data on both
// success and failure (spec.md §9 notes the original does this on both
// arms; this server matches it rather than silently narrowing to
// after-only on failure).
func (s *Server) handleSetAttr(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	raw, wireSize, ok := xdr.ReadOpaque(params, 0, fileHandleMaxLen)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	h, ok := mountcache.DecodeFileHandle(raw)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}

	rest := params.Sub(wireSize, params.Len()-wireSize)
	attrs, ok := decodeSattr3(rest)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}

	before, beforeStatus := s.resolve(h)
	if beforeStatus != nfsstatus.OK {
		return encodeStatusWithEmptyWcc(beforeStatus), nil
	}

	if attrs.guardCtimeSet {
		curSec, curNsec := wintime.ToUnix(before.attr.CTimeTicks)
		if curSec != attrs.guardCtimeSec || curNsec != attrs.guardCtimeNsec {
			return encodeSetAttrReply(nfsstatus.ErrNotSync, before.attr, before.attr), nil
		}
	}

	if attrs.sizeSet && !before.attr.IsDir {
		if err := s.fs.SetSize(before.path, attrs.size); err != nil {
			return encodeSetAttrReply(nfsstatus.FromHostError(err), before.attr, before.attr), nil
		}
	}

	if attrs.atimeHow != timeDontChange || attrs.mtimeHow != timeDontChange {
		atimeTicks := wintime.FromUnix(attrs.atimeSec, attrs.atimeNsec)
		if attrs.atimeHow == timeDontChange {
			atimeTicks = before.attr.ATimeTicks
		}
		mtimeTicks := wintime.FromUnix(attrs.mtimeSec, attrs.mtimeNsec)
		if attrs.mtimeHow == timeDontChange {
			mtimeTicks = before.attr.MTimeTicks
		}
		useCurrentAtime := attrs.atimeHow == timeSetToServerTime
		useCurrentMtime := attrs.mtimeHow == timeSetToServerTime
		if err := s.fs.SetTimes(before.path, atimeTicks, mtimeTicks, useCurrentAtime, useCurrentMtime); err != nil {
			return encodeSetAttrReply(nfsstatus.FromHostError(err), before.attr, before.attr), nil
		}
	}

	after, afterStatus := s.resolve(h)
	if afterStatus != nfsstatus.OK {
		return encodeSetAttrReply(nfsstatus.OK, before.attr, before.attr), nil
	}
	return encodeSetAttrReply(nfsstatus.OK, before.attr, after.attr), nil
}

func encodeSetAttrReply(status nfsstatus.NFS, before, after fsadapter.Attr) []byte {
	w := xdr.NewWriter(4 + wccDataEmptySize + fattr3WireSize)
	w.AppendU32(uint32(status))
	encodeWcc(w, before, true, after, true)
	return w.Bytes()
}

func encodeStatusOnly(status nfsstatus.NFS) []byte {
	w := xdr.NewWriter(4)
	w.AppendU32(uint32(status))
	return w.Bytes()
}

func encodeStatusWithEmptyWcc(status nfsstatus.NFS) []byte {
	w := xdr.NewWriter(4 + wccDataEmptySize)
	w.AppendU32(uint32(status))
	encodeEmptyWcc(w)
	return w.Bytes()
}
