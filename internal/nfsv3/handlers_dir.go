package nfsv3

import (
	"bytes"
	"context"
	"encoding/binary"
	"path/filepath"

	"github.com/brinkfs/nfsd/internal/fsadapter"
	"github.com/brinkfs/nfsd/internal/mountcache"
	"github.com/brinkfs/nfsd/internal/nfsstatus"
	"github.com/brinkfs/nfsd/internal/rpc"
	"github.com/brinkfs/nfsd/internal/xdr"
)

// createhow3 discriminants, RFC 1813 §3.3.8. EXCLUSIVE is decoded but
// always answered with ERR_NOTSUPP (spec.md §4.8 row 8).
const (
	createUnchecked = 0
	createGuarded   = 1
	createExclusive = 2
)

// decodeHandleNameOffset decodes a handle followed by a name, returning
// the byte offset immediately past the name for callers that have more
// fields to decode (CREATE's createhow3, RENAME's second handle+name).
func decodeHandleNameOffset(r *xdr.Reader) (mountcache.FileHandle, string, int, bool) {
	raw, wireSize, ok := xdr.ReadOpaque(r, 0, fileHandleMaxLen)
	if !ok {
		return mountcache.FileHandle{}, "", 0, false
	}
	h, ok := mountcache.DecodeFileHandle(raw)
	if !ok {
		return mountcache.FileHandle{}, "", 0, false
	}
	off := wireSize
	name, nameWire, ok := xdr.ReadOpaque(r, off, maxNameLen)
	if !ok {
		return mountcache.FileHandle{}, "", 0, false
	}
	return h, string(name), off + nameWire, true
}

// createAttrs is the subset of sattr3 CREATE/MKDIR act on: the initial
// mode. uid/gid/size/atime/mtime are decoded (to keep the cursor
// correctly positioned) but not applied, matching handleSetAttr's
// treatment of the same fields.
type createAttrs struct {
	modeSet bool
	mode    uint32
}

func decodeCreateSattr3(r *xdr.Reader, off int) (createAttrs, int, bool) {
	var a createAttrs
	a.modeSet = r.GetU32BE(off) != 0
	off += 4
	if a.modeSet {
		a.mode = r.GetU32BE(off)
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
	sizeSet := r.GetU32BE(off) != 0
	off += 4
	if sizeSet {
		off += 8
	}

	atimeHow := r.GetU32BE(off)
	off += 4
	if atimeHow == timeSetToClientTime {
		off += 8
	}
	mtimeHow := r.GetU32BE(off)
	off += 4
	if mtimeHow == timeSetToClientTime {
		off += 8
	}

	if !r.Valid() {
		return createAttrs{}, 0, false
	}
	return a, off, true
}

// encodeStatusWithPostOp writes {status, post_op_attr}: GETATTR-shaped
// failure/success replies (FSSTAT, FSINFO, PATHCONF, READDIR/READDIRPLUS
// failure) where the object resolved but the operation itself failed.
func encodeStatusWithPostOp(status nfsstatus.NFS, attr fsadapter.Attr) []byte {
	w := xdr.NewWriter(8 + fattr3WireSize)
	w.AppendU32(uint32(status))
	encodePostOpAttr(w, attr)
	return w.Bytes()
}

// encodeWccFailure writes {status, dir_wcc}: the common failure shape
// for CREATE/MKDIR/REMOVE/RMDIR. dirKnown is false only when dir_fh
// itself failed to resolve, in which case wcc_data is fully absent.
func encodeWccFailure(status nfsstatus.NFS, dirAttr fsadapter.Attr, dirKnown bool) []byte {
	w := xdr.NewWriter(4 + wccDataEmptySize)
	w.AppendU32(uint32(status))
	if dirKnown {
		encodeWcc(w, dirAttr, true, dirAttr, true)
	} else {
		encodeEmptyWcc(w)
	}
	return w.Bytes()
}

// encodeCreateSuccess writes the CREATE3resok/MKDIR3resok shape:
// {post_op_fh3, obj post_op_attr, dir wcc_data}.
func encodeCreateSuccess(fh mountcache.FileHandle, obj, dirBefore, dirAfter fsadapter.Attr) []byte {
	w := xdr.NewWriter(4 + 4 + (4 + fileHandleMaxLen) + 4 + fattr3WireSize + 2*(4+fattr3WireSize))
	w.AppendU32(uint32(nfsstatus.OK))
	w.AppendBool(true)
	writeHandle(w, fh)
	encodePostOpAttr(w, obj)
	encodeWcc(w, dirBefore, true, dirAfter, true)
	return w.Bytes()
}

// handleCreate implements CREATE. UNCHECKED overwrites an existing file
// (matching NFSv3's "create if absent, truncate if present" semantics);
// GUARDED fails if the name already exists; EXCLUSIVE is out of scope
// (spec.md §4.8 row 8) and always answers ERR_NOTSUPP.
func (s *Server) handleCreate(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	h, name, off, ok := decodeHandleNameOffset(params)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	mode := params.GetU32BE(off)
	off += 4
	if !params.Valid() {
		return nil, rpc.ErrGarbageArgs
	}

	dir, status := s.resolve(h)
	if status != nfsstatus.OK {
		return encodeWccFailure(status, dir.attr, false), nil
	}
	if !dir.attr.IsDir {
		return encodeWccFailure(nfsstatus.ErrNotDir, dir.attr, true), nil
	}
	if mode == createExclusive {
		return encodeWccFailure(nfsstatus.ErrNotSupp, dir.attr, true), nil
	}

	attrs, _, ok := decodeCreateSattr3(params, off)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	fileMode := uint32(0o644)
	if attrs.modeSet {
		fileMode = attrs.mode
	}

	child, err := s.fs.Create(dir.path, name, fileMode, mode == createGuarded)
	if err != nil {
		return encodeWccFailure(nfsstatus.FromHostError(err), dir.attr, true), nil
	}
	childAttr, err := s.fs.Attr(child.Path)
	if err != nil {
		return encodeWccFailure(nfsstatus.FromHostError(err), dir.attr, true), nil
	}

	after, afterStatus := s.resolve(h)
	afterAttr := dir.attr
	if afterStatus == nfsstatus.OK {
		afterAttr = after.attr
	}

	return encodeCreateSuccess(childHandle(h, child.FileID), childAttr, dir.attr, afterAttr), nil
}

// handleMkdir implements MKDIR: create a subdirectory, failing with
// ERR_EXIST if the name is already taken (spec.md §4.8 row 9).
func (s *Server) handleMkdir(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	h, name, off, ok := decodeHandleNameOffset(params)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}

	dir, status := s.resolve(h)
	if status != nfsstatus.OK {
		return encodeWccFailure(status, dir.attr, false), nil
	}
	if !dir.attr.IsDir {
		return encodeWccFailure(nfsstatus.ErrNotDir, dir.attr, true), nil
	}

	attrs, _, ok := decodeCreateSattr3(params, off)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	dirMode := uint32(0o755)
	if attrs.modeSet {
		dirMode = attrs.mode
	}

	child, err := s.fs.MkDir(dir.path, name, dirMode)
	if err != nil {
		return encodeWccFailure(nfsstatus.FromHostError(err), dir.attr, true), nil
	}
	childAttr, err := s.fs.Attr(child.Path)
	if err != nil {
		return encodeWccFailure(nfsstatus.FromHostError(err), dir.attr, true), nil
	}

	after, afterStatus := s.resolve(h)
	afterAttr := dir.attr
	if afterStatus == nfsstatus.OK {
		afterAttr = after.attr
	}

	return encodeCreateSuccess(childHandle(h, child.FileID), childAttr, dir.attr, afterAttr), nil
}

// handleRemove implements REMOVE: delete a non-directory entry.
func (s *Server) handleRemove(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	h, name, ok := decodeHandleAndName(params)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}

	dir, status := s.resolve(h)
	if status != nfsstatus.OK {
		return encodeWccFailure(status, dir.attr, false), nil
	}
	if !dir.attr.IsDir {
		return encodeWccFailure(nfsstatus.ErrNotDir, dir.attr, true), nil
	}

	if err := s.fs.Remove(dir.path, name); err != nil {
		return encodeWccFailure(nfsstatus.FromHostError(err), dir.attr, true), nil
	}

	after, afterStatus := s.resolve(h)
	afterAttr := dir.attr
	if afterStatus == nfsstatus.OK {
		afterAttr = after.attr
	}
	w := xdr.NewWriter(4 + wccDataEmptySize)
	w.AppendU32(uint32(nfsstatus.OK))
	encodeWcc(w, dir.attr, true, afterAttr, true)
	return w.Bytes(), nil
}

// handleRmdir implements RMDIR: remove an empty subdirectory.
func (s *Server) handleRmdir(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	h, name, ok := decodeHandleAndName(params)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}

	dir, status := s.resolve(h)
	if status != nfsstatus.OK {
		return encodeWccFailure(status, dir.attr, false), nil
	}
	if !dir.attr.IsDir {
		return encodeWccFailure(nfsstatus.ErrNotDir, dir.attr, true), nil
	}

	if err := s.fs.RmDir(dir.path, name); err != nil {
		return encodeWccFailure(nfsstatus.FromHostError(err), dir.attr, true), nil
	}

	after, afterStatus := s.resolve(h)
	afterAttr := dir.attr
	if afterStatus == nfsstatus.OK {
		afterAttr = after.attr
	}
	w := xdr.NewWriter(4 + wccDataEmptySize)
	w.AppendU32(uint32(nfsstatus.OK))
	encodeWcc(w, dir.attr, true, afterAttr, true)
	return w.Bytes(), nil
}

func encodeRenameFailure(status nfsstatus.NFS, fromAttr fsadapter.Attr, fromKnown bool, toAttr fsadapter.Attr, toKnown bool) []byte {
	w := xdr.NewWriter(4 + 2*wccDataEmptySize)
	w.AppendU32(uint32(status))
	if fromKnown {
		encodeWcc(w, fromAttr, true, fromAttr, true)
	} else {
		encodeEmptyWcc(w)
	}
	if toKnown {
		encodeWcc(w, toAttr, true, toAttr, true)
	} else {
		encodeEmptyWcc(w)
	}
	return w.Bytes()
}

// handleRename implements RENAME. Cross-directory rename is permitted
// only when both handles address the same volume_serial (spec.md §4.8
// row 14) — a rename across distinct mounted volumes isn't a single
// atomic filesystem operation on most hosts, so it's rejected the same
// way a real NFS server rejects EXDEV.
func (s *Server) handleRename(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	fromH, fromName, off, ok := decodeHandleNameOffset(params)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	raw, wireSize, ok := xdr.ReadOpaque(params, off, fileHandleMaxLen)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	toH, ok := mountcache.DecodeFileHandle(raw)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	off += wireSize
	toNameRaw, nameWire, ok := xdr.ReadOpaque(params, off, maxNameLen)
	if !ok || !params.Valid() {
		return nil, rpc.ErrGarbageArgs
	}
	off += nameWire
	toName := string(toNameRaw)

	fromDir, fromStatus := s.resolve(fromH)
	if fromStatus != nfsstatus.OK {
		return encodeRenameFailure(fromStatus, fromDir.attr, false, fsadapter.Attr{}, false), nil
	}
	toDir, toStatus := s.resolve(toH)
	if toStatus != nfsstatus.OK {
		return encodeRenameFailure(toStatus, fromDir.attr, true, fsadapter.Attr{}, false), nil
	}
	if !fromDir.attr.IsDir || !toDir.attr.IsDir {
		return encodeRenameFailure(nfsstatus.ErrNotDir, fromDir.attr, true, toDir.attr, true), nil
	}
	if fromH.VolumeSerial != toH.VolumeSerial {
		return encodeRenameFailure(nfsstatus.ErrXDev, fromDir.attr, true, toDir.attr, true), nil
	}

	if err := s.fs.Rename(fromDir.path, fromName, toDir.path, toName); err != nil {
		return encodeRenameFailure(nfsstatus.FromHostError(err), fromDir.attr, true, toDir.attr, true), nil
	}

	fromAfter, fromAfterStatus := s.resolve(fromH)
	fromAfterAttr := fromDir.attr
	if fromAfterStatus == nfsstatus.OK {
		fromAfterAttr = fromAfter.attr
	}
	toAfter, toAfterStatus := s.resolve(toH)
	toAfterAttr := toDir.attr
	if toAfterStatus == nfsstatus.OK {
		toAfterAttr = toAfter.attr
	}

	w := xdr.NewWriter(4 + 2*wccDataEmptySize)
	w.AppendU32(uint32(nfsstatus.OK))
	encodeWcc(w, fromDir.attr, true, fromAfterAttr, true)
	encodeWcc(w, toDir.attr, true, toAfterAttr, true)
	return w.Bytes(), nil
}

// xdrPaddedLen returns n rounded up to the next multiple of 4, the
// on-wire footprint of an n-byte opaque's data+padding (excluding its
// 4-byte length prefix).
func xdrPaddedLen(n int) int {
	return n + (4-n%4)%4
}

// cookieVerifier computes the READDIR/READDIRPLUS cookie verifier from
// a directory's current mtime ticks (spec.md §4.8.1: "the verifier is
// the directory's current modification time (8 bytes, native)"). Using
// mtime means a rename within the directory on a filesystem that only
// bumps mtime on content writes won't be detected — spec.md §9 notes
// this explicitly and leaves it to the implementer; this server follows
// the literal rule rather than inventing a separate change counter.
func cookieVerifier(attr fsadapter.Attr) [8]byte {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], attr.MTimeTicks)
	return v
}

// handleReaddir implements READDIR's pagination contract (spec.md
// §4.8.1): cookie 0 starts a fresh enumeration and accepts any verifier;
// a non-zero cookie must carry back the verifier this server handed out,
// or ERR_BAD_COOKIE. Entries are assigned 1-based cookies in the
// adapter's stable sort order and the reply halts, with is_finished
// false, as soon as the next entry would exceed count.
func (s *Server) handleReaddir(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	raw, wireSize, ok := xdr.ReadOpaque(params, 0, fileHandleMaxLen)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	h, ok := mountcache.DecodeFileHandle(raw)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	off := wireSize
	cookie := params.GetU64BE(off)
	off += 8
	verifier := params.GetBytes(off, 8)
	off += 8
	count := params.GetU32BE(off)
	off += 4
	if !params.Valid() {
		return nil, rpc.ErrGarbageArgs
	}

	res, status := s.resolve(h)
	if status != nfsstatus.OK {
		return encodeStatusWithAbsentPostOp(status), nil
	}
	if !res.attr.IsDir {
		return encodeStatusWithPostOp(nfsstatus.ErrNotDir, res.attr), nil
	}

	verf := cookieVerifier(res.attr)
	if cookie != 0 && !bytes.Equal(verifier, verf[:]) {
		return encodeStatusWithPostOp(nfsstatus.ErrBadCookie, res.attr), nil
	}

	entries, err := s.fs.ReadDir(res.path)
	if err != nil {
		return encodeStatusWithPostOp(nfsstatus.FromHostError(err), res.attr), nil
	}

	type entry struct {
		fileID uint64
		name   string
		cookie uint64
	}
	var selected []entry
	used := 0
	finished := true
	for i, e := range entries {
		idx := uint64(i + 1)
		if idx <= cookie {
			continue
		}
		cost := 4 + 8 + (4 + xdrPaddedLen(len(e.Name))) + 8
		if used+cost > int(count) {
			finished = false
			break
		}
		used += cost
		selected = append(selected, entry{fileID: e.FileID.Lo, name: e.Name, cookie: idx})
	}

	w := xdr.NewWriter(4 + 4 + fattr3WireSize + 8 + used + 8)
	w.AppendU32(uint32(nfsstatus.OK))
	encodePostOpAttr(w, res.attr)
	w.AppendBytes(verf[:])
	for _, e := range selected {
		w.AppendBool(true)
		w.AppendU64(e.fileID)
		xdr.WriteOpaque(w, []byte(e.name), maxNameLen)
		w.AppendU64(e.cookie)
	}
	w.AppendBool(false)
	w.AppendBool(finished)
	return w.Bytes(), nil
}

// handleReaddirPlus implements READDIRPLUS: as handleReaddir, but each
// entry also carries its post-op attributes and file handle, and
// pagination is bounded by two independent budgets (spec.md §4.8.1).
func (s *Server) handleReaddirPlus(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
	raw, wireSize, ok := xdr.ReadOpaque(params, 0, fileHandleMaxLen)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	h, ok := mountcache.DecodeFileHandle(raw)
	if !ok {
		return nil, rpc.ErrGarbageArgs
	}
	off := wireSize
	cookie := params.GetU64BE(off)
	off += 8
	verifier := params.GetBytes(off, 8)
	off += 8
	dircount := params.GetU32BE(off)
	off += 4
	maxcount := params.GetU32BE(off)
	off += 4
	if !params.Valid() {
		return nil, rpc.ErrGarbageArgs
	}

	res, status := s.resolve(h)
	if status != nfsstatus.OK {
		return encodeStatusWithAbsentPostOp(status), nil
	}
	if !res.attr.IsDir {
		return encodeStatusWithPostOp(nfsstatus.ErrNotDir, res.attr), nil
	}

	verf := cookieVerifier(res.attr)
	if cookie != 0 && !bytes.Equal(verifier, verf[:]) {
		return encodeStatusWithPostOp(nfsstatus.ErrBadCookie, res.attr), nil
	}

	entries, err := s.fs.ReadDir(res.path)
	if err != nil {
		return encodeStatusWithPostOp(nfsstatus.FromHostError(err), res.attr), nil
	}

	type plusEntry struct {
		fileID  uint64
		name    string
		cookie  uint64
		attr    fsadapter.Attr
		hasAttr bool
		handle  mountcache.FileHandle
	}
	var selected []plusEntry
	dirUsed, fullUsed := 0, 0
	finished := true
	for i, e := range entries {
		idx := uint64(i + 1)
		if idx <= cookie {
			continue
		}
		namePad := xdrPaddedLen(len(e.Name))
		dirCost := 8 + (4 + namePad) + 8
		if dirUsed+dirCost > int(dircount) {
			finished = false
			break
		}
		childAttr, attrErr := s.fs.Attr(filepath.Join(res.path, e.Name))
		hasAttr := attrErr == nil
		attrCost := 4
		if hasAttr {
			attrCost = 4 + fattr3WireSize
		}
		handleCost := 4 + (4 + fileHandleMaxLen)
		fullCost := 4 + 8 + (4 + namePad) + 8 + attrCost + handleCost
		if fullUsed+fullCost > int(maxcount) {
			finished = false
			break
		}
		dirUsed += dirCost
		fullUsed += fullCost
		selected = append(selected, plusEntry{
			fileID:  e.FileID.Lo,
			name:    e.Name,
			cookie:  idx,
			attr:    childAttr,
			hasAttr: hasAttr,
			handle:  childHandle(h, e.FileID),
		})
	}

	bufSize := 4 + 4 + fattr3WireSize + 8 + 4
	for _, pe := range selected {
		bufSize += 4 + 8 + (4 + xdrPaddedLen(len(pe.name))) + 8
		if pe.hasAttr {
			bufSize += 4 + fattr3WireSize
		} else {
			bufSize += 4
		}
		bufSize += 4 + (4 + fileHandleMaxLen)
	}

	w := xdr.NewWriter(bufSize)
	w.AppendU32(uint32(nfsstatus.OK))
	encodePostOpAttr(w, res.attr)
	w.AppendBytes(verf[:])
	for _, pe := range selected {
		w.AppendBool(true)
		w.AppendU64(pe.fileID)
		xdr.WriteOpaque(w, []byte(pe.name), maxNameLen)
		w.AppendU64(pe.cookie)
		if pe.hasAttr {
			encodePostOpAttr(w, pe.attr)
		} else {
			encodeAbsentPostOpAttr(w)
		}
		w.AppendBool(true)
		writeHandle(w, pe.handle)
	}
	w.AppendBool(false)
	w.AppendBool(finished)
	return w.Bytes(), nil
}
