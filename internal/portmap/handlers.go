package portmap

import (
	"context"
	"net"

	"github.com/brinkfs/nfsd/internal/logger"
	"github.com/brinkfs/nfsd/internal/rpc"
	"github.com/brinkfs/nfsd/internal/xdr"
)

// PORTMAP v2 procedure numbers, RFC 1057 §A.
const (
	ProcNull    uint32 = 0
	ProcSet     uint32 = 1
	ProcUnset   uint32 = 2
	ProcGetPort uint32 = 3
	ProcDump    uint32 = 4
	// ProcCallit (5) forwards a call to another registered program on the
	// caller's behalf. It is not registered below: answering it would let
	// this server be used as a UDP reflection amplifier against a third
	// party, the same reasoning recorded in SPEC_FULL.md §4.
)

// mappingWireSize is the encoded size of a {prog, vers, prot, port}
// argument: four big-endian u32 fields.
const mappingWireSize = 16

// Procedures builds the PORTMAP v2 dispatch table against registry,
// ready to hand to rpc.Router.Register(rpc.ProgramPortmap,
// rpc.PortmapVersion2, Procedures(registry)).
func Procedures(registry *Registry) map[uint32]*rpc.Procedure {
	return map[uint32]*rpc.Procedure{
		ProcNull:    {Name: "NULL", Handler: handleNull},
		ProcSet:     {Name: "SET", Handler: handlerSet(registry)},
		ProcUnset:   {Name: "UNSET", Handler: handlerUnset(registry)},
		ProcGetPort: {Name: "GETPORT", Handler: handlerGetPort(registry)},
		ProcDump:    {Name: "DUMP", Handler: handlerDump(registry)},
	}
}

func handleNull(_ context.Context, _ string, _ *xdr.Reader) ([]byte, error) {
	return []byte{}, nil
}

// handlerSet restricts registration to localhost clients, per standard
// portmapper security practice: a remote client proposing its own
// program/port mapping has no legitimate use case here.
func handlerSet(registry *Registry) rpc.ProcedureHandler {
	return func(_ context.Context, sender string, params *xdr.Reader) ([]byte, error) {
		if !isLocalhost(sender) {
			logger.Warn("portmap SET rejected: non-localhost client", "client", sender)
			return encodeBool(false), nil
		}
		m, ok := decodeMapping(params)
		if !ok {
			return nil, rpc.ErrGarbageArgs
		}
		if !isValidProtocol(m.Prot) {
			logger.Warn("portmap SET rejected: invalid protocol", "protocol", m.Prot)
			return encodeBool(false), nil
		}
		return encodeBool(registry.Set(m)), nil
	}
}

func handlerUnset(registry *Registry) rpc.ProcedureHandler {
	return func(_ context.Context, sender string, params *xdr.Reader) ([]byte, error) {
		if !isLocalhost(sender) {
			logger.Warn("portmap UNSET rejected: non-localhost client", "client", sender)
			return encodeBool(false), nil
		}
		m, ok := decodeMapping(params)
		if !ok {
			return nil, rpc.ErrGarbageArgs
		}
		if !isValidProtocol(m.Prot) {
			logger.Warn("portmap UNSET rejected: invalid protocol", "protocol", m.Prot)
			return encodeBool(false), nil
		}
		return encodeBool(registry.Unset(m.Prog, m.Vers, m.Prot)), nil
	}
}

func handlerGetPort(registry *Registry) rpc.ProcedureHandler {
	return func(_ context.Context, _ string, params *xdr.Reader) ([]byte, error) {
		m, ok := decodeMapping(params)
		if !ok {
			return nil, rpc.ErrGarbageArgs
		}
		w := xdr.NewWriter(4)
		w.AppendU32(registry.GetPort(m.Prog, m.Vers, m.Prot))
		return w.Bytes(), nil
	}
}

// handlerDump encodes the registry as the XDR optional-data linked list
// RFC 1057 specifies: (true, mapping, next)* false.
func handlerDump(registry *Registry) rpc.ProcedureHandler {
	return func(_ context.Context, _ string, _ *xdr.Reader) ([]byte, error) {
		mappings := registry.Dump()
		w := xdr.NewWriter(4 + len(mappings)*(4+mappingWireSize))
		xdr.WriteList(w, mappings, func(w *xdr.Writer, m Mapping) {
			w.AppendU32(m.Prog)
			w.AppendU32(m.Vers)
			w.AppendU32(m.Prot)
			w.AppendU32(m.Port)
		})
		return w.Bytes(), nil
	}
}

func decodeMapping(r *xdr.Reader) (Mapping, bool) {
	if !r.HasSize(mappingWireSize) {
		return Mapping{}, false
	}
	m := Mapping{
		Prog: r.GetU32BE(0),
		Vers: r.GetU32BE(4),
		Prot: r.GetU32BE(8),
		Port: r.GetU32BE(12),
	}
	if !r.Valid() {
		return Mapping{}, false
	}
	return m, true
}

func encodeBool(v bool) []byte {
	w := xdr.NewWriter(4)
	w.AppendBool(v)
	return w.Bytes()
}

// isValidProtocol reports whether prot is TCP or UDP, per spec.md §4.5's
// "reject mappings whose protocol is not TCP/UDP".
func isValidProtocol(prot uint32) bool {
	return prot == ProtoTCP || prot == ProtoUDP
}

// isLocalhost reports whether addr (a "host:port" sender string as
// transport.Dispatcher passes it) is a loopback address.
func isLocalhost(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
