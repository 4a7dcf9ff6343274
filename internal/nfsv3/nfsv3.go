// Package nfsv3 implements the NFS version 3 program (RFC 1813): the 21
// procedures of spec.md §4.8, dispatched against an
// internal/mountcache.Cache for handle validation and an
// internal/fsadapter.Adapter for the actual filesystem work.
package nfsv3

import (
	"context"
	"crypto/rand"

	"github.com/brinkfs/nfsd/internal/fsadapter"
	"github.com/brinkfs/nfsd/internal/mountcache"
	"github.com/brinkfs/nfsd/internal/nfsstatus"
	"github.com/brinkfs/nfsd/internal/rpc"
	"github.com/brinkfs/nfsd/internal/xdr"
)

// Procedure numbers, RFC 1813 §3.3.
const (
	ProcNull        = 0
	ProcGetAttr     = 1
	ProcSetAttr     = 2
	ProcLookup      = 3
	ProcAccess      = 4
	ProcReadlink    = 5
	ProcRead        = 6
	ProcWrite       = 7
	ProcCreate      = 8
	ProcMkdir       = 9
	ProcSymlink     = 10
	ProcMknod       = 11
	ProcRemove      = 12
	ProcRmdir       = 13
	ProcRename      = 14
	ProcLink        = 15
	ProcReaddir     = 16
	ProcReaddirPlus = 17
	ProcFsStat      = 18
	ProcFsInfo      = 19
	ProcPathConf    = 20
	ProcCommit      = 21
)

// Server holds the collaborators every NFSv3 procedure needs: the mount
// cache for handle validation and the host filesystem adapter for
// everything else. It carries no per-call state.
type Server struct {
	cache    *mountcache.Cache
	fs       *fsadapter.Adapter
	verifier [8]byte // constant per process lifetime, returned by COMMIT
}

// New returns a Server. The COMMIT write-verifier is drawn once at
// startup: RFC 1813 requires it to change across server restarts (so a
// client can tell a reboot happened and must resend unstable writes),
// not across individual COMMIT calls.
func New(cache *mountcache.Cache, fs *fsadapter.Adapter) *Server {
	s := &Server{cache: cache, fs: fs}
	_, _ = rand.Read(s.verifier[:])
	return s
}

// Procedures builds the NFSv3 dispatch table, ready for
// rpc.Router.Register(rpc.ProgramNFS, rpc.NFSVersion3, ...).
func (s *Server) Procedures() map[uint32]*rpc.Procedure {
	return map[uint32]*rpc.Procedure{
		ProcNull:        {Name: "NULL", Handler: handleNull},
		ProcGetAttr:     {Name: "GETATTR", Handler: s.handleGetAttr},
		ProcSetAttr:     {Name: "SETATTR", Handler: s.handleSetAttr},
		ProcLookup:      {Name: "LOOKUP", Handler: s.handleLookup},
		ProcAccess:      {Name: "ACCESS", Handler: s.handleAccess},
		ProcReadlink:    {Name: "READLINK", Handler: s.handleReadlink},
		ProcRead:        {Name: "READ", Handler: s.handleRead},
		ProcWrite:       {Name: "WRITE", Handler: s.handleWrite},
		ProcCreate:      {Name: "CREATE", Handler: s.handleCreate},
		ProcMkdir:       {Name: "MKDIR", Handler: s.handleMkdir},
		ProcSymlink:     {Name: "SYMLINK", Handler: handleNotSupp},
		ProcMknod:       {Name: "MKNOD", Handler: handleNotSupp},
		ProcRemove:      {Name: "REMOVE", Handler: s.handleRemove},
		ProcRmdir:       {Name: "RMDIR", Handler: s.handleRmdir},
		ProcRename:      {Name: "RENAME", Handler: s.handleRename},
		ProcLink:        {Name: "LINK", Handler: handleLinkNotSupp},
		ProcReaddir:     {Name: "READDIR", Handler: s.handleReaddir},
		ProcReaddirPlus: {Name: "READDIRPLUS", Handler: s.handleReaddirPlus},
		ProcFsStat:      {Name: "FSSTAT", Handler: s.handleFsStat},
		ProcFsInfo:      {Name: "FSINFO", Handler: s.handleFsInfo},
		ProcPathConf:    {Name: "PATHCONF", Handler: s.handlePathConf},
		ProcCommit:      {Name: "COMMIT", Handler: s.handleCommit},
	}
}

func handleNull(_ context.Context, _ string, _ *xdr.Reader) ([]byte, error) {
	return []byte{}, nil
}

// handleNotSupp answers SYMLINK/MKNOD with ERR_NOTSUPP plus the
// wcc_data the corresponding mutating procedure's reply union would
// otherwise carry — callers that don't bother to fully decode a reply
// they expect to fail still get a structurally valid one.
func handleNotSupp(_ context.Context, _ string, _ *xdr.Reader) ([]byte, error) {
	w := xdr.NewWriter(4 + wccDataEmptySize)
	w.AppendU32(uint32(nfsstatus.ErrNotSupp))
	encodeEmptyWcc(w)
	return w.Bytes(), nil
}

// handleLinkNotSupp answers LINK with ERR_NOTSUPP in LINK3resfail's
// shape: an absent file post_op_attr, then an empty linkdir wcc_data.
func handleLinkNotSupp(_ context.Context, _ string, _ *xdr.Reader) ([]byte, error) {
	w := xdr.NewWriter(4 + 4 + wccDataEmptySize)
	w.AppendU32(uint32(nfsstatus.ErrNotSupp))
	encodeAbsentPostOpAttr(w)
	encodeEmptyWcc(w)
	return w.Bytes(), nil
}
