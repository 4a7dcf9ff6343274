package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/brinkfs/nfsd/internal/xdr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeTestCall builds a minimal well-formed CALL envelope with an
// AUTH_NONE credential and verifier and the given params appended.
func encodeTestCall(xid, program, version, procedure uint32, params []byte) []byte {
	w := xdr.NewWriter(64)
	w.AppendU32(xid)
	w.AppendU32(msgTypeCall)
	w.AppendU32(rpcVersion2)
	w.AppendU32(program)
	w.AppendU32(version)
	w.AppendU32(procedure)
	w.AppendU32(AuthFlavorNone) // cred flavor
	w.AppendU32(0)              // cred body length
	w.AppendU32(AuthFlavorNone) // verf flavor
	w.AppendU32(0)              // verf body length
	w.AppendBytes(params)
	return w.Bytes()
}

func TestDecodeCallRoundTrip(t *testing.T) {
	t.Run("WellFormedCallDecodesAllFields", func(t *testing.T) {
		msg := encodeTestCall(0xDEADBEEF, ProgramNFS, NFSVersion3, 1, []byte{0x01, 0x02, 0x03, 0x04})

		call, ok := DecodeCall(msg)
		require.True(t, ok)
		assert.Equal(t, uint32(0xDEADBEEF), call.XID)
		assert.Equal(t, ProgramNFS, call.Program)
		assert.Equal(t, NFSVersion3, call.Version)
		assert.Equal(t, uint32(1), call.Procedure)
		assert.Equal(t, 4, call.Params.Len())
		assert.Equal(t, uint32(0x01020304), call.Params.GetU32BE(0))
	})

	t.Run("TruncatedEnvelopeIsDropped", func(t *testing.T) {
		_, ok := DecodeCall([]byte{0, 0, 0, 1})
		assert.False(t, ok)
	})

	t.Run("ReplyTypeIsNotACall", func(t *testing.T) {
		w := xdr.NewWriter(8)
		w.AppendU32(1)
		w.AppendU32(msgTypeReply)
		_, ok := DecodeCall(w.Bytes())
		assert.False(t, ok)
	})
}

func TestRouterDispatch(t *testing.T) {
	t.Run("UnknownProgramIsProgUnavail", func(t *testing.T) {
		rt := NewRouter()
		msg := encodeTestCall(1, 999999, 1, 0, nil)
		reply := rt.Dispatch(context.Background(), msg, "127.0.0.1")
		require.NotNil(t, reply)

		r := xdr.NewReader(reply)
		assert.Equal(t, uint32(1), r.GetU32BE(0))            // xid echoed
		assert.Equal(t, acceptStatProgUnavail, r.GetU32BE(20))
	})

	t.Run("WrongVersionIsProgMismatch", func(t *testing.T) {
		rt := NewRouter()
		rt.Register(ProgramNFS, NFSVersion3, map[uint32]*Procedure{})
		msg := encodeTestCall(2, ProgramNFS, 99, 0, nil)
		reply := rt.Dispatch(context.Background(), msg, "127.0.0.1")

		r := xdr.NewReader(reply)
		assert.Equal(t, acceptStatProgMismatch, r.GetU32BE(20))
		assert.Equal(t, NFSVersion3, r.GetU32BE(24))
		assert.Equal(t, NFSVersion3, r.GetU32BE(28))
	})

	t.Run("UnknownProcedureIsProcUnavail", func(t *testing.T) {
		rt := NewRouter()
		rt.Register(ProgramNFS, NFSVersion3, map[uint32]*Procedure{})
		msg := encodeTestCall(3, ProgramNFS, NFSVersion3, 42, nil)
		reply := rt.Dispatch(context.Background(), msg, "127.0.0.1")

		r := xdr.NewReader(reply)
		assert.Equal(t, acceptStatProcUnavail, r.GetU32BE(20))
	})

	t.Run("SuccessfulHandlerReturnsEncodedResult", func(t *testing.T) {
		rt := NewRouter()
		rt.Register(ProgramNFS, NFSVersion3, map[uint32]*Procedure{
			0: {Name: "NULL", Handler: func(ctx context.Context, sender string, params *xdr.Reader) ([]byte, error) {
				w := xdr.NewWriter(4)
				w.AppendU32(7)
				return w.Bytes(), nil
			}},
		})
		msg := encodeTestCall(4, ProgramNFS, NFSVersion3, 0, nil)
		reply := rt.Dispatch(context.Background(), msg, "127.0.0.1")

		r := xdr.NewReader(reply)
		assert.Equal(t, acceptStatSuccess, r.GetU32BE(20))
		assert.Equal(t, uint32(7), r.GetU32BE(24))
	})

	t.Run("GarbageArgsErrorIsGarbageArgsReply", func(t *testing.T) {
		rt := NewRouter()
		rt.Register(ProgramNFS, NFSVersion3, map[uint32]*Procedure{
			0: {Name: "NULL", Handler: func(ctx context.Context, sender string, params *xdr.Reader) ([]byte, error) {
				return nil, ErrGarbageArgs
			}},
		})
		msg := encodeTestCall(5, ProgramNFS, NFSVersion3, 0, nil)
		reply := rt.Dispatch(context.Background(), msg, "127.0.0.1")

		r := xdr.NewReader(reply)
		assert.Equal(t, acceptStatGarbageArgs, r.GetU32BE(20))
	})

	t.Run("ObserverSeesProgramProcedureAndStatus", func(t *testing.T) {
		rt := NewRouter()
		rt.Register(ProgramNFS, NFSVersion3, map[uint32]*Procedure{
			0: {Name: "NULL", Handler: func(ctx context.Context, sender string, params *xdr.Reader) ([]byte, error) {
				return nil, nil
			}},
		})

		var gotProgram uint32
		var gotProcedure, gotStatus string
		rt.SetObserver(func(program uint32, procedure, status string, duration time.Duration) {
			gotProgram, gotProcedure, gotStatus = program, procedure, status
		})

		msg := encodeTestCall(6, ProgramNFS, NFSVersion3, 0, nil)
		rt.Dispatch(context.Background(), msg, "127.0.0.1")

		assert.Equal(t, ProgramNFS, gotProgram)
		assert.Equal(t, "NULL", gotProcedure)
		assert.Equal(t, "ok", gotStatus)
	})
}

func TestReplyBuilder(t *testing.T) {
	t.Run("AcceptSuccessLayout", func(t *testing.T) {
		body := Reply(42).Accept().NullAuth().Success([]byte{0xAA})
		r := xdr.NewReader(body)
		assert.Equal(t, uint32(42), r.GetU32BE(0))
		assert.Equal(t, replyStatAccepted, r.GetU32BE(8))
		assert.Equal(t, AuthFlavorNone, r.GetU32BE(12))
		assert.Equal(t, uint32(0), r.GetU32BE(16)) // verf body length
		assert.Equal(t, acceptStatSuccess, r.GetU32BE(20))
		assert.Equal(t, uint8(0xAA), r.GetU8(24))
	})

	t.Run("RejectMismatchLayout", func(t *testing.T) {
		body := Reply(1).Reject().Mismatch(2, 2)
		r := xdr.NewReader(body)
		assert.Equal(t, replyStatDenied, r.GetU32BE(8))
		assert.Equal(t, rejectStatRPCMismatch, r.GetU32BE(12))
		assert.Equal(t, uint32(2), r.GetU32BE(16))
		assert.Equal(t, uint32(2), r.GetU32BE(20))
	})
}
