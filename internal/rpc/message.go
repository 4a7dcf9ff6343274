// Package rpc implements the RFC 1057 ONC RPC envelope: CALL decoding,
// REPLY construction, and the three-level program/version/procedure
// router shared by PORTMAP, MOUNT, and NFSv3.
package rpc

import "github.com/brinkfs/nfsd/internal/xdr"

// Program numbers, RFC 1057 assigned / de-facto standard.
const (
	ProgramPortmap uint32 = 100000
	ProgramMount   uint32 = 100005
	ProgramNFS     uint32 = 100003
)

// Program versions this server implements.
const (
	PortmapVersion2 uint32 = 2
	MountVersion3   uint32 = 3
	NFSVersion3     uint32 = 3
)

// Default listen ports, per spec.md §6.
const (
	PortmapPort = 111
	MountPort   = 1058
	NFSPort     = 2049
)

// RPC message type discriminant.
const (
	msgTypeCall  uint32 = 0
	msgTypeReply uint32 = 1
)

const rpcVersion2 uint32 = 2

// maxAuthBodyLen bounds opaque_auth.body per RFC 1057 (400 bytes).
const maxAuthBodyLen = 400

// OpaqueAuth is the {flavor, body} pair carried by both cred and verf on a
// CALL. Flavor/body contents are parsed but never validated by the router:
// authentication is out of scope for this core (spec.md §1 Non-goals).
type OpaqueAuth struct {
	Flavor uint32
	Body   []byte
}

// Auth flavors referenced while parsing CALL credentials.
const (
	AuthFlavorNone uint32 = 0
	AuthFlavorUnix uint32 = 1
)

// CallBody is a decoded RPC CALL envelope. Params is a sub-Reader scoped
// to exactly the procedure-specific argument bytes that followed the
// envelope; procedures decode their own XDR arguments out of it.
type CallBody struct {
	XID        uint32
	RPCVersion uint32
	Program    uint32
	Version    uint32
	Procedure  uint32
	Cred       OpaqueAuth
	Verf       OpaqueAuth
	Params     *xdr.Reader
}

// DecodeCall parses msg as an RPC CALL envelope. ok is false for anything
// malformed: per spec.md §4.2, such messages are silently dropped (no
// reply), so callers must not synthesize an error reply on a false ok.
func DecodeCall(msg []byte) (call *CallBody, ok bool) {
	r := xdr.NewReader(msg)

	xid := r.GetU32BE(0)
	msgType := r.GetU32BE(4)
	if !r.Valid() || msgType != msgTypeCall {
		return nil, false
	}

	rpcvers := r.GetU32BE(8)
	program := r.GetU32BE(12)
	version := r.GetU32BE(16)
	procedure := r.GetU32BE(20)
	if !r.Valid() {
		return nil, false
	}
	if rpcvers != rpcVersion2 {
		// Structurally valid envelope with an unsupported rpcvers: the
		// router replies RPC_MISMATCH rather than dropping it, so the
		// fields needed for that reply (just the XID) are returned as-is.
		return &CallBody{XID: xid, RPCVersion: rpcvers, Program: program, Version: version, Procedure: procedure}, true
	}

	off := 24
	cred, n, ok := decodeOpaqueAuth(r, off)
	if !ok {
		return nil, false
	}
	off += n

	verf, n, ok := decodeOpaqueAuth(r, off)
	if !ok {
		return nil, false
	}
	off += n

	params := r.Sub(off, r.Len()-off)
	if !params.Valid() {
		return nil, false
	}

	return &CallBody{
		XID:        xid,
		RPCVersion: rpcvers,
		Program:    program,
		Version:    version,
		Procedure:  procedure,
		Cred:       cred,
		Verf:       verf,
		Params:     params,
	}, true
}

func decodeOpaqueAuth(r *xdr.Reader, off int) (auth OpaqueAuth, wireSize int, ok bool) {
	body, wireSize, ok := xdr.ReadOpaque(r, off+4, maxAuthBodyLen)
	flavor := r.GetU32BE(off)
	if !r.Valid() || !ok {
		return OpaqueAuth{}, 0, false
	}
	return OpaqueAuth{Flavor: flavor, Body: body}, 4 + wireSize, true
}

// AuthUnixCredential is the decoded body of an AUTH_UNIX (AUTH_SYS)
// credential, RFC 1057 §9.2. Only UID/GID are consumed by this server;
// MachineName and auxiliary Gids are retained for completeness/logging.
type AuthUnixCredential struct {
	Stamp       uint32
	MachineName string
	UID         uint32
	GID         uint32
	Gids        []uint32
}

// DecodeAuthUnixCredential parses auth.Body as an AUTH_UNIX credential.
// ok is false if auth.Flavor is not AuthFlavorUnix or the body is
// malformed; callers should treat a false result as "no credential
// available" rather than an error, per spec.md's "parsed but not
// validated" auth policy.
func DecodeAuthUnixCredential(auth OpaqueAuth) (cred AuthUnixCredential, ok bool) {
	if auth.Flavor != AuthFlavorUnix {
		return AuthUnixCredential{}, false
	}
	r := xdr.NewReader(auth.Body)

	stamp := r.GetU32BE(0)
	nameLen := int(r.GetU32BE(4))
	if !r.Valid() {
		return AuthUnixCredential{}, false
	}
	name := r.GetUTF8(8, nameLen)
	off := 8 + nameLen + padLen(nameLen)

	uid := r.GetU32BE(off)
	gid := r.GetU32BE(off + 4)
	ngids := int(r.GetU32BE(off + 8))
	if !r.Valid() || ngids < 0 || ngids > 16 {
		return AuthUnixCredential{}, false
	}

	gids := make([]uint32, ngids)
	for i := 0; i < ngids; i++ {
		gids[i] = r.GetU32BE(off + 12 + i*4)
	}
	if !r.Valid() {
		return AuthUnixCredential{}, false
	}

	return AuthUnixCredential{Stamp: stamp, MachineName: name, UID: uid, GID: gid, Gids: gids}, true
}

func padLen(n int) int {
	return (4 - (n % 4)) % 4
}
