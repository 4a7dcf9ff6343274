// Package wintime converts between the host filesystem adapter's
// timestamp representation — 100-nanosecond ticks since 1601-01-01 UTC,
// the representation exposed by FILE_ID_INFO/FILETIME-shaped host APIs —
// and the (seconds, nanoseconds) pairs NFSv3's nfstime3 wants on the wire.
package wintime

// unixDiffTicks is the number of 100-ns ticks between 1601-01-01 and
// 1970-01-01, per spec.md §4.8.2.
const unixDiffTicks = 116444736000000000

// ticksPerSecond is the number of 100-ns ticks in one second.
const ticksPerSecond = 10_000_000

// ToUnix converts ticks (100-ns intervals since 1601) to a
// (seconds, nanoseconds) pair since the Unix epoch, per spec.md §4.8.2:
// "ticks - 116444736000000000; quotient by 10_000_000 is seconds;
// remainder × 100 is nanoseconds."
func ToUnix(ticks uint64) (seconds uint32, nanoseconds uint32) {
	if ticks < unixDiffTicks {
		return 0, 0
	}
	unixTicks := ticks - unixDiffTicks
	seconds = uint32(unixTicks / ticksPerSecond)
	nanoseconds = uint32((unixTicks % ticksPerSecond) * 100)
	return seconds, nanoseconds
}

// FromUnix is ToUnix's inverse, used by tests and by any adapter that
// needs to synthesize a tick value from wall-clock time (e.g. a SETATTR
// "set to server time" that must round-trip through the same
// representation the read path uses).
func FromUnix(seconds, nanoseconds uint32) uint64 {
	return uint64(seconds)*ticksPerSecond + uint64(nanoseconds)/100 + unixDiffTicks
}
