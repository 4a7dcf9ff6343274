package nfsv3

import (
	"github.com/brinkfs/nfsd/internal/fsadapter"
	"github.com/brinkfs/nfsd/internal/wintime"
	"github.com/brinkfs/nfsd/internal/xdr"
)

// ftype3 values, RFC 1813 §2.5.
const (
	nf3Reg  = 1
	nf3Dir  = 2
	nf3Lnk  = 5
)

// ACCESS3 bits, RFC 1813 §3.3.4.
const (
	access3Read    = 0x0001
	access3Lookup  = 0x0002
	access3Modify  = 0x0004
	access3Extend  = 0x0008
	access3Delete  = 0x0010
	access3Execute = 0x0020
)

// fattr3WireSize: 5 u32 fields, 2 u64 fields, a u32 rdev pair, 2 more u64
// fields, 3 nfstime3 (2 u32 each) — RFC 1813 §2.5.
const fattr3WireSize = 4*5 + 8*2 + 4*2 + 8*2 + 4*2*3

// wccDataEmptySize is a wcc_data with neither pre_op_attr nor
// post_op_attr present: two XDR booleans (false, false).
const wccDataEmptySize = 8

// filetype maps an adapter attribute to ftype3, per spec.md §4.8.2.
func filetype(a fsadapter.Attr) uint32 {
	switch {
	case a.IsSymlink:
		return nf3Lnk
	case a.IsDir:
		return nf3Dir
	default:
		return nf3Reg
	}
}

// encodeFattr3 writes a's attributes in fattr3 wire order. mode is
// passed through from the host's real POSIX permission bits: spec.md
// §4.8.2 describes deriving mode from Windows SYSTEM/READONLY file
// attributes, which have no POSIX analogue on this adapter's host, so
// the adapter's own (already-correct) permission bits are reported
// directly instead of being synthesized from attributes this host
// doesn't have.
func encodeFattr3(w *xdr.Writer, a fsadapter.Attr) {
	w.AppendU32(filetype(a))
	w.AppendU32(a.Mode)
	w.AppendU32(a.NLink)
	w.AppendU32(a.UID)
	w.AppendU32(a.GID)
	w.AppendU64(a.Size)
	w.AppendU64(a.Used)
	w.AppendU32(0) // rdev.specdata1: not a device node
	w.AppendU32(0) // rdev.specdata2
	w.AppendU64(a.Vol)       // fsid
	w.AppendU64(a.FileID.Lo) // fileid: low 64 bits of file_id, per spec.md §4.8.2
	encodeNFSTime(w, a.ATimeTicks)
	encodeNFSTime(w, a.MTimeTicks)
	encodeNFSTime(w, a.CTimeTicks)
}

// encodeNFSTime converts a host tick value back to nfstime3's
// (seconds, nanoseconds) wire pair via internal/wintime.ToUnix, the
// inverse of the FromUnix call internal/fsadapter used to produce it
// (see internal/fsadapter's DESIGN.md entry for why the round trip
// exists on a POSIX host).
func encodeNFSTime(w *xdr.Writer, ticks uint64) {
	sec, nsec := wintime.ToUnix(ticks)
	w.AppendU32(sec)
	w.AppendU32(nsec)
}

// encodePostOpAttr writes a present post_op_attr (true, fattr3).
func encodePostOpAttr(w *xdr.Writer, a fsadapter.Attr) {
	w.AppendBool(true)
	encodeFattr3(w, a)
}

// encodeAbsentPostOpAttr writes an absent post_op_attr (false).
func encodeAbsentPostOpAttr(w *xdr.Writer) {
	w.AppendBool(false)
}

// encodePreOpAttr writes a present pre_op_attr: {size, mtime, ctime},
// the subset of fattr3 WCC needs to detect a change.
func encodePreOpAttr(w *xdr.Writer, a fsadapter.Attr) {
	w.AppendBool(true)
	w.AppendU64(a.Size)
	encodeNFSTime(w, a.MTimeTicks)
	encodeNFSTime(w, a.CTimeTicks)
}

func encodeAbsentPreOpAttr(w *xdr.Writer) {
	w.AppendBool(false)
}

// encodeWcc writes a full wcc_data {pre_op_attr, post_op_attr} from a
// before/after pair captured around a mutating operation. before may be
// the zero Attr with ok=false when the object didn't exist before the
// call (e.g. CREATE of a new file).
func encodeWcc(w *xdr.Writer, before fsadapter.Attr, beforeOK bool, after fsadapter.Attr, afterOK bool) {
	if beforeOK {
		encodePreOpAttr(w, before)
	} else {
		encodeAbsentPreOpAttr(w)
	}
	if afterOK {
		encodePostOpAttr(w, after)
	} else {
		encodeAbsentPostOpAttr(w)
	}
}

// encodeEmptyWcc writes a wcc_data with both fields absent, for
// failure replies where no before/after snapshot was taken.
func encodeEmptyWcc(w *xdr.Writer) {
	encodeAbsentPreOpAttr(w)
	encodeAbsentPostOpAttr(w)
}

// accessMask computes the ACCESS3 result bits for a, intersecting the
// client's requested bits with what a's file type permits (spec.md
// §4.8.2 table row 4): EXECUTE only applies to non-directories, and
// LOOKUP/DELETE only apply to directories. A read-only object (no owner
// write bit) additionally loses MODIFY/EXTEND.
func accessMask(a fsadapter.Attr, requested uint32) uint32 {
	result := requested
	if a.IsDir {
		result &^= access3Execute
	} else {
		result &^= access3Lookup | access3Delete
	}
	const ownerWrite = 0o200
	if a.Mode&ownerWrite == 0 {
		result &^= access3Modify | access3Extend
	}
	return result
}
