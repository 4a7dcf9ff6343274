package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging across the RPC/MOUNT/NFSv3
// stack. Use these keys consistently so log lines can be grepped and
// aggregated across procedures.
const (
	// ========================================================================
	// Request correlation
	// ========================================================================
	KeyTraceID   = "trace_id"   // per-call UUID, assigned at RPC dispatch
	KeyProgram   = "program"    // RPC program name: portmap, mount, nfs
	KeyProcedure = "procedure"  // procedure name: LOOKUP, WRITE, MNT, GETPORT...
	KeyXID       = "xid"        // RPC transaction id from the call envelope
	KeyStatus    = "status"     // NFS/MOUNT status code
	KeyStatusMsg = "status_msg" // human-readable status

	// ========================================================================
	// Filesystem identity
	// ========================================================================
	KeyPath       = "path"        // virtual (alias) path
	KeyHostPath   = "host_path"   // resolved host filesystem path
	KeyFilename   = "filename"    // entry name (basename)
	KeyOldPath    = "old_path"    // RENAME source
	KeyNewPath    = "new_path"    // RENAME destination
	KeyHandle     = "handle"      // file handle, hex-encoded
	KeyMountID    = "mount_id"    // mount cache session id
	KeyType       = "type"        // ftype3 value
	KeySize       = "size"        // file size in bytes
	KeyMode       = "mode"        // POSIX permission bits

	// ========================================================================
	// I/O
	// ========================================================================
	KeyOffset       = "offset"
	KeyCount        = "count"
	KeyBytesRead    = "bytes_read"
	KeyBytesWritten = "bytes_written"
	KeyEOF          = "eof"
	KeyStable       = "stable"

	// ========================================================================
	// Client identification
	// ========================================================================
	KeyClientIP = "client_ip"
	KeyUID      = "uid"
	KeyGID      = "gid"
	KeyAuth     = "auth"

	// ========================================================================
	// Transport
	// ========================================================================
	KeyConnectionID = "connection_id"
	KeyNetwork      = "network" // tcp or udp

	// ========================================================================
	// Directory enumeration
	// ========================================================================
	KeyEntries     = "entries"
	KeyCookie      = "cookie"
	KeyCookieVerif = "cookie_verifier"

	// ========================================================================
	// Operation metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
)

// TraceID returns a slog.Attr for the per-call trace id.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// Program returns a slog.Attr for the RPC program name.
func Program(name string) slog.Attr { return slog.String(KeyProgram, name) }

// Procedure returns a slog.Attr for the procedure name.
func Procedure(name string) slog.Attr { return slog.String(KeyProcedure, name) }

// XID returns a slog.Attr for the RPC transaction id.
func XID(xid uint32) slog.Attr { return slog.Any(KeyXID, xid) }

// Status returns a slog.Attr for a status code.
func Status(code int) slog.Attr { return slog.Int(KeyStatus, code) }

// StatusMsg returns a slog.Attr for a human-readable status.
func StatusMsg(msg string) slog.Attr { return slog.String(KeyStatusMsg, msg) }

// Path returns a slog.Attr for a virtual path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// HostPath returns a slog.Attr for a resolved host path.
func HostPath(p string) slog.Attr { return slog.String(KeyHostPath, p) }

// Filename returns a slog.Attr for an entry basename.
func Filename(name string) slog.Attr { return slog.String(KeyFilename, name) }

// OldPath returns a slog.Attr for a RENAME source path.
func OldPath(p string) slog.Attr { return slog.String(KeyOldPath, p) }

// NewPath returns a slog.Attr for a RENAME destination path.
func NewPath(p string) slog.Attr { return slog.String(KeyNewPath, p) }

// Handle returns a slog.Attr for a file handle, hex-encoded.
func Handle(h []byte) slog.Attr { return slog.String(KeyHandle, fmt.Sprintf("%x", h)) }

// MountID returns a slog.Attr for a mount cache session id.
func MountID(id uint64) slog.Attr { return slog.Uint64(KeyMountID, id) }

// Type returns a slog.Attr for an ftype3 value.
func Type(t uint32) slog.Attr { return slog.Any(KeyType, t) }

// Size returns a slog.Attr for a file size.
func Size(s uint64) slog.Attr { return slog.Uint64(KeySize, s) }

// Mode returns a slog.Attr for permission bits.
func Mode(m uint32) slog.Attr { return slog.Any(KeyMode, m) }

// Offset returns a slog.Attr for an I/O offset.
func Offset(off uint64) slog.Attr { return slog.Uint64(KeyOffset, off) }

// Count returns a slog.Attr for a requested byte count.
func Count(c uint32) slog.Attr { return slog.Any(KeyCount, c) }

// BytesRead returns a slog.Attr for actual bytes read.
func BytesRead(n int) slog.Attr { return slog.Int(KeyBytesRead, n) }

// BytesWritten returns a slog.Attr for actual bytes written.
func BytesWritten(n int) slog.Attr { return slog.Int(KeyBytesWritten, n) }

// EOF returns a slog.Attr for an end-of-file indicator.
func EOF(eof bool) slog.Attr { return slog.Bool(KeyEOF, eof) }

// Stable returns a slog.Attr for a WRITE stability level.
func Stable(s uint32) slog.Attr { return slog.Any(KeyStable, s) }

// ClientIP returns a slog.Attr for the client's address.
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

// UID returns a slog.Attr for a user id.
func UID(uid uint32) slog.Attr { return slog.Any(KeyUID, uid) }

// GID returns a slog.Attr for a group id.
func GID(gid uint32) slog.Attr { return slog.Any(KeyGID, gid) }

// Auth returns a slog.Attr for an RPC auth flavor.
func Auth(flavor uint32) slog.Attr { return slog.Any(KeyAuth, flavor) }

// ConnectionID returns a slog.Attr for a transport connection id.
func ConnectionID(id string) slog.Attr { return slog.String(KeyConnectionID, id) }

// Network returns a slog.Attr for the transport (tcp/udp).
func Network(n string) slog.Attr { return slog.String(KeyNetwork, n) }

// Entries returns a slog.Attr for a directory entry count.
func Entries(n int) slog.Attr { return slog.Int(KeyEntries, n) }

// Cookie returns a slog.Attr for a READDIR cookie.
func Cookie(c uint64) slog.Attr { return slog.Uint64(KeyCookie, c) }

// CookieVerifier returns a slog.Attr for a READDIR cookie verifier, hex-encoded.
func CookieVerifier(v []byte) slog.Attr {
	return slog.String(KeyCookieVerif, fmt.Sprintf("%x", v))
}

// DurationMs returns a slog.Attr for an operation duration.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error, or a zero Attr if err is nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
