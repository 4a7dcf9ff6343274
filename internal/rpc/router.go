package rpc

import (
	"context"
	"errors"
	"time"

	"github.com/brinkfs/nfsd/internal/xdr"
)

// ErrGarbageArgs is returned by a ProcedureHandler when it could not
// decode its arguments. The router maps it to accept_stat=GARBAGE_ARGS
// per spec.md §4.1's "Procedures that consume an invalid reader must
// return INVALID_ARGUMENTS so the RPC router can send GARBAGE_ARGS."
var ErrGarbageArgs = errors.New("rpc: garbage arguments")

// ProcedureHandler decodes params, performs the procedure's work, and
// returns the XDR-encoded result body. Returning ErrGarbageArgs causes
// the router to reply GARBAGE_ARGS instead of Success; any other
// non-nil error is a system-level failure (logged by the caller) and
// also yields no reply data — framing layers decide whether to drop the
// connection.
type ProcedureHandler func(ctx context.Context, sender string, params *xdr.Reader) ([]byte, error)

// Procedure pairs a handler with its name, for logging and metrics.
type Procedure struct {
	Name    string
	Handler ProcedureHandler
}

type version struct {
	low, high  uint32
	procedures map[uint32]*Procedure
}

// Observer is notified once per Dispatch call, after the reply has
// been built. program is the number passed to Register; procedure is
// the matched Procedure.Name, or "" if dispatch never reached a
// procedure lookup. status is a short outcome tag ("ok", "garbage_args",
// "procedure_unavailable", "program_mismatch", "program_unavailable",
// "rpc_mismatch", "dropped") suitable as a metrics label.
type Observer func(program uint32, procedure, status string, duration time.Duration)

// Router implements the three-level program → version → procedure
// dispatch of spec.md §4.4. It carries no per-call state: all state
// lives in the registered programs (portmap table, mount cache, ...).
type Router struct {
	programs map[uint32]*version
	observer Observer
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{programs: make(map[uint32]*version)}
}

// SetObserver installs a callback invoked after every Dispatch call,
// giving callers (e.g. internal/metrics) the program/procedure/status
// labels that Dispatch's return value alone does not expose.
func (rt *Router) SetObserver(obs Observer) {
	rt.observer = obs
}

// Register adds procedure handlers for {program, version}. version is
// also used as both the low and high bound reported in a PROG_MISMATCH
// reply, since each program in this server supports exactly one version.
func (rt *Router) Register(program, ver uint32, procedures map[uint32]*Procedure) {
	rt.programs[program] = &version{low: ver, high: ver, procedures: procedures}
}

// Dispatch decodes msg as an RPC CALL and returns the REPLY bytes to
// send back, or nil if the message should be silently dropped (per
// spec.md §4.2/§4.4: malformed envelope, or a procedure handler that
// returned a non-ErrGarbageArgs error with nothing to send).
func (rt *Router) Dispatch(ctx context.Context, msg []byte, sender string) []byte {
	start := time.Now()

	call, ok := DecodeCall(msg)
	if !ok {
		return nil
	}

	if call.RPCVersion != rpcVersion2 {
		rt.observe(call.Program, "", "rpc_mismatch", start)
		return Reply(call.XID).Reject().Mismatch(rpcVersion2, rpcVersion2)
	}

	prog, ok := rt.programs[call.Program]
	if !ok {
		rt.observe(call.Program, "", "program_unavailable", start)
		return Reply(call.XID).Accept().NullAuth().ProgramUnavailable()
	}

	if call.Version < prog.low || call.Version > prog.high {
		rt.observe(call.Program, "", "program_mismatch", start)
		return Reply(call.XID).Accept().NullAuth().ProgramMismatch(prog.low, prog.high)
	}

	proc, ok := prog.procedures[call.Procedure]
	if !ok || proc.Handler == nil {
		rt.observe(call.Program, "", "procedure_unavailable", start)
		return Reply(call.XID).Accept().NullAuth().ProcedureUnavailable()
	}

	body, err := proc.Handler(ctx, sender, call.Params)
	if err != nil {
		if errors.Is(err, ErrGarbageArgs) {
			rt.observe(call.Program, proc.Name, "garbage_args", start)
			return Reply(call.XID).Accept().NullAuth().GarbageArgs()
		}
		rt.observe(call.Program, proc.Name, "dropped", start)
		return nil
	}

	rt.observe(call.Program, proc.Name, "ok", start)
	return Reply(call.XID).Accept().NullAuth().Success(body)
}

func (rt *Router) observe(program uint32, procedure, status string, start time.Time) {
	if rt.observer == nil {
		return
	}
	rt.observer(program, procedure, status, time.Since(start))
}
