package nfsv3

import (
	"context"

	"github.com/brinkfs/nfsd/internal/nfsstatus"
	"github.com/brinkfs/nfsd/internal/xdr"
)

// FSSTAT's file-count fields are reported as constants rather than a
// real inode count (spec.md §4.8 row 18): this server has no cheap way
// to enumerate total/free inodes on every host filesystem it might run
// on, and NFSv3 clients generally only use these fields for display.
const (
	fsstatConstFiles     uint64 = 1 << 33
	fsstatConstFreeFiles uint64 = 1 << 32
)

// FSINFO's capability block, spec.md §4.8 row 19. rtmult/wtmult (the
// preferred transfer size multiple) are reported equal to the
// corresponding max, matching how a single-block-size server answers.
const (
	fsinfoReadMax           = maxReadCount
	fsinfoWriteMax          = 4 * 1024
	fsinfoDirPref           = 8 * 1024
	fsinfoMaxFileSize       = 1 << 40 // 1 TiB
	fsPropertiesHomogeneous = 0x0008  // FSF3_HOMOGENEOUS, RFC 1813 §3.3.19
)

// PATHCONF's constants, spec.md §4.8 row 20.
const (
	pathconfLinkMax = 1
)

// handleFsStat implements FSSTAT: real free/total/available byte counts
// from the host filesystem, constant file counts (see fsstatConstFiles).
func (s *Server) handleFsStat(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	res, status := s.resolveFromReader(params)
	if status != nfsstatus.OK {
		return encodeStatusWithAbsentPostOp(status), nil
	}

	total, free, avail, _, _, err := s.fs.FSStat(res.path)
	if err != nil {
		return encodeStatusWithPostOp(nfsstatus.FromHostError(err), res.attr), nil
	}

	w := xdr.NewWriter(4 + 4 + fattr3WireSize + 8*6 + 4)
	w.AppendU32(uint32(nfsstatus.OK))
	encodePostOpAttr(w, res.attr)
	w.AppendU64(total)
	w.AppendU64(free)
	w.AppendU64(avail)
	w.AppendU64(fsstatConstFiles)
	w.AppendU64(fsstatConstFreeFiles)
	w.AppendU64(fsstatConstFreeFiles)
	w.AppendU32(0) // invarsec: no bound offered on how long these figures stay accurate
	return w.Bytes(), nil
}

// handleFsInfo implements FSINFO: the constant capability block every
// reply carries, regardless of the handle's underlying volume.
func (s *Server) handleFsInfo(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	res, status := s.resolveFromReader(params)
	if status != nfsstatus.OK {
		return encodeStatusWithAbsentPostOp(status), nil
	}

	w := xdr.NewWriter(4 + 4 + fattr3WireSize + 4*7 + 8 + 8 + 4)
	w.AppendU32(uint32(nfsstatus.OK))
	encodePostOpAttr(w, res.attr)
	w.AppendU32(fsinfoReadMax)
	w.AppendU32(fsinfoReadMax)
	w.AppendU32(fsinfoReadMax)
	w.AppendU32(fsinfoWriteMax)
	w.AppendU32(fsinfoWriteMax)
	w.AppendU32(fsinfoWriteMax)
	w.AppendU32(fsinfoDirPref)
	w.AppendU64(fsinfoMaxFileSize)
	w.AppendU32(0)   // time_delta.seconds
	w.AppendU32(100) // time_delta.nseconds: this server's tick granularity is 100ns
	w.AppendU32(fsPropertiesHomogeneous)
	return w.Bytes(), nil
}

// handlePathConf implements PATHCONF: the constant pathconf block
// spec.md §4.8 row 20 names. chown_restricted/case_insensitive/
// case_preserving are fixed values; none of them is read from the host
// filesystem.
func (s *Server) handlePathConf(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	res, status := s.resolveFromReader(params)
	if status != nfsstatus.OK {
		return encodeStatusWithAbsentPostOp(status), nil
	}

	w := xdr.NewWriter(4 + 4 + fattr3WireSize + 4 + 4 + 4*4)
	w.AppendU32(uint32(nfsstatus.OK))
	encodePostOpAttr(w, res.attr)
	w.AppendU32(pathconfLinkMax)
	w.AppendU32(maxNameLen)
	w.AppendBool(true) // no_trunc
	w.AppendBool(true) // chown_restricted
	w.AppendBool(true) // case_insensitive
	w.AppendBool(true) // case_preserving
	return w.Bytes(), nil
}
