package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// CallContext holds the per-RPC-call fields that every log line for the
// lifetime of a call should carry: which program/procedure is running,
// who's calling, and when the call started (for duration logging).
type CallContext struct {
	TraceID    string // assigned once per inbound RPC call
	Program    string // portmap, mount, nfs
	Procedure  string // LOOKUP, WRITE, MNT, GETPORT, ...
	ClientIP   string
	UID        uint32
	GID        uint32
	AuthFlavor uint32
	StartTime  time.Time
}

// WithContext returns a new context carrying cc.
func WithContext(ctx context.Context, cc *CallContext) context.Context {
	return context.WithValue(ctx, logContextKey, cc)
}

// FromContext retrieves the CallContext from ctx, or nil if none is set.
func FromContext(ctx context.Context) *CallContext {
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(logContextKey).(*CallContext)
	return cc
}

// NewCallContext creates a CallContext for a freshly accepted RPC call.
func NewCallContext(traceID, clientIP string) *CallContext {
	return &CallContext{
		TraceID:   traceID,
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone returns a copy of cc.
func (cc *CallContext) Clone() *CallContext {
	if cc == nil {
		return nil
	}
	clone := *cc
	return &clone
}

// WithProgram returns a copy of cc with Program set.
func (cc *CallContext) WithProgram(program string) *CallContext {
	clone := cc.Clone()
	if clone != nil {
		clone.Program = program
	}
	return clone
}

// WithProcedure returns a copy of cc with Procedure set.
func (cc *CallContext) WithProcedure(procedure string) *CallContext {
	clone := cc.Clone()
	if clone != nil {
		clone.Procedure = procedure
	}
	return clone
}

// WithAuth returns a copy of cc with the credential fields set.
func (cc *CallContext) WithAuth(uid, gid, authFlavor uint32) *CallContext {
	clone := cc.Clone()
	if clone != nil {
		clone.UID = uid
		clone.GID = gid
		clone.AuthFlavor = authFlavor
	}
	return clone
}

// DurationMs returns the time elapsed since StartTime in milliseconds.
func (cc *CallContext) DurationMs() float64 {
	if cc == nil || cc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(cc.StartTime).Microseconds()) / 1000.0
}
