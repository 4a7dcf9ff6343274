// Package mount implements the MOUNT v3 program (RFC 1813 §5): NULL,
// MNT, UMNT, UMNTALL, plus EXPORT/DUMP stubs that report no exports,
// wired into internal/rpc.Router against an internal/mountcache.Cache.
package mount

import (
	"context"
	"errors"

	"github.com/brinkfs/nfsd/internal/logger"
	"github.com/brinkfs/nfsd/internal/mountcache"
	"github.com/brinkfs/nfsd/internal/nfsstatus"
	"github.com/brinkfs/nfsd/internal/rpc"
	"github.com/brinkfs/nfsd/internal/xdr"
)

// Procedure numbers, RFC 1813 §5.2.
const (
	ProcNull    = 0
	ProcMnt     = 1
	ProcDump    = 2
	ProcUmnt    = 3
	ProcUmntAll = 4
	ProcExport  = 5
)

// maxDirPathLen bounds the dirpath argument's opaque length, RFC 1813's
// MNTPATHLEN.
const maxDirPathLen = 1024

// fileHandleWireSize is the MOUNT v3 fhandle3 payload: a 4-byte length
// prefix followed by up to 64 bytes of opaque handle data (RFC 1813's
// FHSIZE3), per spec.md §3/§6.
const fileHandleWireSize = 64

// Procedures builds the MOUNT v3 dispatch table against cache.
func Procedures(cache *mountcache.Cache) map[uint32]*rpc.Procedure {
	return map[uint32]*rpc.Procedure{
		ProcNull:    {Name: "NULL", Handler: handleNull},
		ProcMnt:     {Name: "MNT", Handler: handleMnt(cache)},
		ProcDump:    {Name: "DUMP", Handler: handleDump},
		ProcUmnt:    {Name: "UMNT", Handler: handleUmnt(cache)},
		ProcUmntAll: {Name: "UMNTALL", Handler: handleUmntAll(cache)},
		ProcExport:  {Name: "EXPORT", Handler: handleExport},
	}
}

func handleNull(_ context.Context, _ string, _ *xdr.Reader) ([]byte, error) {
	return []byte{}, nil
}

// handleMnt implements the MNT procedure: decode a dirpath string,
// find-or-insert a mount via the cache, and reply {mountstat3, fhandle3,
// auth_flavors<>} on success or just {mountstat3} on failure (RFC 1813
// §5.2.1's mountres3 union).
func handleMnt(cache *mountcache.Cache) rpc.ProcedureHandler {
	return func(_ context.Context, sender string, params *xdr.Reader) ([]byte, error) {
		dirPath, ok := decodeDirPath(params)
		if !ok {
			return nil, rpc.ErrGarbageArgs
		}

		handle, err := cache.Mount(sender, dirPath)
		if err != nil {
			logger.Warn("mnt denied", "sender", sender, "path", dirPath, "err", err)
			if errors.Is(err, mountcache.ErrNotFound) {
				return encodeMountStatus(nfsstatus.MountErrNoEnt), nil
			}
			return encodeMountStatus(nfsstatus.FromHostErrorMount(err)), nil
		}

		w := xdr.NewWriter(96)
		w.AppendU32(uint32(nfsstatus.MountOK))
		raw := handle.Encode()
		xdr.WriteOpaque(w, raw[:], fileHandleWireSize)
		w.AppendU32(0) // auth_flavors<>: empty, AUTH_NONE implied
		return w.Bytes(), nil
	}
}

// handleUmnt implements UMNT: drop the sender's membership for dirpath.
// RFC 1813 defines no error status for UMNT; this always succeeds, even
// for an unrecognized path (Cache.Unmount is a no-op in that case).
func handleUmnt(cache *mountcache.Cache) rpc.ProcedureHandler {
	return func(_ context.Context, sender string, params *xdr.Reader) ([]byte, error) {
		dirPath, ok := decodeDirPath(params)
		if !ok {
			return nil, rpc.ErrGarbageArgs
		}
		cache.Unmount(sender, dirPath)
		return []byte{}, nil
	}
}

// handleUmntAll implements UMNTALL: drop every mount membership for the
// calling client in one call.
func handleUmntAll(cache *mountcache.Cache) rpc.ProcedureHandler {
	return func(_ context.Context, sender string, _ *xdr.Reader) ([]byte, error) {
		cache.UnmountAll(sender)
		return []byte{}, nil
	}
}

// handleDump reports an empty mountlist. Per spec.md §4's scope note,
// tracking which client mounted which export by name (rather than just
// membership, already served by MNT/UMNT/UMNTALL) is not built.
func handleDump(_ context.Context, _ string, _ *xdr.Reader) ([]byte, error) {
	w := xdr.NewWriter(4)
	w.AppendBool(false) // mountlist: empty
	return w.Bytes(), nil
}

// handleExport reports an empty export list, for the same reason as
// handleDump.
func handleExport(_ context.Context, _ string, _ *xdr.Reader) ([]byte, error) {
	w := xdr.NewWriter(4)
	w.AppendBool(false) // exports: empty
	return w.Bytes(), nil
}

func decodeDirPath(r *xdr.Reader) (string, bool) {
	data, _, ok := xdr.ReadOpaque(r, 0, maxDirPathLen)
	if !ok || !r.Valid() {
		return "", false
	}
	return string(data), true
}

func encodeMountStatus(stat nfsstatus.Mount) []byte {
	w := xdr.NewWriter(4)
	w.AppendU32(uint32(stat))
	return w.Bytes()
}
