package rpc

import "github.com/brinkfs/nfsd/internal/xdr"

// Reply-message discriminants, RFC 1057 §9.
const (
	replyStatAccepted uint32 = 0
	replyStatDenied    uint32 = 1

	acceptStatSuccess      uint32 = 0
	acceptStatProgUnavail  uint32 = 1
	acceptStatProgMismatch uint32 = 2
	acceptStatProcUnavail  uint32 = 3
	acceptStatGarbageArgs  uint32 = 4

	rejectStatRPCMismatch uint32 = 0
	rejectStatAuthError   uint32 = 1
)

// RPCAcceptStatus names the outcomes an accepted reply can carry, for
// callers (the router, metrics) that want to branch on how a call ended
// without re-parsing the encoded reply.
type RPCAcceptStatus int

const (
	AcceptSuccess RPCAcceptStatus = iota
	AcceptProgUnavailable
	AcceptProgMismatch
	AcceptProcUnavailable
	AcceptGarbageArgs
)

// Reply begins building a REPLY message for the CALL with the given xid.
// The fluent chain mirrors spec.md §4.2: Reply(xid).Accept().NullAuth().
// Success(body), or .ProgramUnavailable(), .ProgramMismatch(lo, hi),
// .ProcedureUnavailable(), .GarbageArgs(); or Reply(xid).Reject().
// Mismatch(lo, hi) / .AuthError(stat).
func Reply(xid uint32) *replyBuilder {
	w := xdr.NewWriter(32)
	w.AppendU32(xid)
	w.AppendU32(msgTypeReply)
	return &replyBuilder{w: w}
}

type replyBuilder struct {
	w *xdr.Writer
}

// Accept starts an accepted-reply body (reply_stat = MSG_ACCEPTED).
func (b *replyBuilder) Accept() *acceptedReplyBuilder {
	b.w.AppendU32(replyStatAccepted)
	return &acceptedReplyBuilder{w: b.w}
}

// Reject starts a denied-reply body (reply_stat = MSG_DENIED).
func (b *replyBuilder) Reject() *rejectedReplyBuilder {
	b.w.AppendU32(replyStatDenied)
	return &rejectedReplyBuilder{w: b.w}
}

type acceptedReplyBuilder struct {
	w *xdr.Writer
}

// NullAuth writes the verf opaque_auth as {AUTH_NONE, empty}. Per
// spec.md §4.2, reply auth flavor is always NONE regardless of what the
// CALL's credential flavor was.
func (b *acceptedReplyBuilder) NullAuth() *acceptedReplyBuilder {
	b.w.AppendU32(AuthFlavorNone)
	b.w.AppendU32(0) // opaque_auth.body length
	return b
}

// Success writes accept_stat=SUCCESS followed by the procedure's raw
// XDR-encoded result bytes.
func (b *acceptedReplyBuilder) Success(body []byte) []byte {
	b.w.AppendU32(acceptStatSuccess)
	b.w.AppendBytes(body)
	return b.w.Bytes()
}

// ProgramUnavailable writes accept_stat=PROG_UNAVAIL (no program matched).
func (b *acceptedReplyBuilder) ProgramUnavailable() []byte {
	b.w.AppendU32(acceptStatProgUnavail)
	return b.w.Bytes()
}

// ProgramMismatch writes accept_stat=PROG_MISMATCH with the supported
// version range [low, high] (used for both program-version and, per this
// server's convention, procedure-unsupported-version cases).
func (b *acceptedReplyBuilder) ProgramMismatch(low, high uint32) []byte {
	b.w.AppendU32(acceptStatProgMismatch)
	b.w.AppendU32(low)
	b.w.AppendU32(high)
	return b.w.Bytes()
}

// ProcedureUnavailable writes accept_stat=PROC_UNAVAIL.
func (b *acceptedReplyBuilder) ProcedureUnavailable() []byte {
	b.w.AppendU32(acceptStatProcUnavail)
	return b.w.Bytes()
}

// GarbageArgs writes accept_stat=GARBAGE_ARGS (XDR argument decode failed).
func (b *acceptedReplyBuilder) GarbageArgs() []byte {
	b.w.AppendU32(acceptStatGarbageArgs)
	return b.w.Bytes()
}

type rejectedReplyBuilder struct {
	w *xdr.Writer
}

// Mismatch writes reject_stat=RPC_MISMATCH with the server's supported
// RPC version range (this server only ever supports rpcvers=2, so low
// and high are both 2).
func (b *rejectedReplyBuilder) Mismatch(low, high uint32) []byte {
	b.w.AppendU32(rejectStatRPCMismatch)
	b.w.AppendU32(low)
	b.w.AppendU32(high)
	return b.w.Bytes()
}

// AuthError writes reject_stat=AUTH_ERROR with the given auth_stat.
// Unused by this core today (no credential validation), kept because
// spec.md §4.2 names it as part of the reply builder's contract.
func (b *rejectedReplyBuilder) AuthError(stat uint32) []byte {
	b.w.AppendU32(rejectStatAuthError)
	b.w.AppendU32(stat)
	return b.w.Bytes()
}
