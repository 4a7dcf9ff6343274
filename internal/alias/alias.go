// Package alias implements the alias resolver of spec.md §4.6: a
// source-tagged list of virtual-path → host-path mappings, resolved by
// longest-prefix match on '/' boundaries.
package alias

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

// Entry is one alias mapping, tagged with the source that installed it.
type Entry struct {
	Source    uint64
	AliasPath string // forward-slash virtual path, e.g. "/exports/data"
	HostPath  string // host filesystem path, e.g. `C:\srv\data` or "/srv/data"
}

// Mapping is the caller-supplied {host_path, alias_path} pair for Set.
// AliasPath may be empty, in which case it is synthesized from HostPath.
type Mapping struct {
	HostPath  string
	AliasPath string
}

// OpenChecker is consulted by Set to skip mappings whose host path
// doesn't actually resolve, per spec.md §4.6 ("Entries whose host path
// does not open successfully are skipped."). The real implementation is
// the fsadapter; tests can supply a stub.
type OpenChecker interface {
	CanOpen(hostPath string) bool
}

// Resolver is the many-reader/one-writer alias table of spec.md §5:
// resolve takes a read lease, set/new_source take an exclusive lease.
type Resolver struct {
	mu      sync.RWMutex
	entries []Entry
	nextSrc atomic.Uint64
	opener  OpenChecker
}

// New returns an empty Resolver. opener may be nil, in which case Set
// never skips a mapping for failing to open (useful in tests that don't
// care about filesystem state).
func New(opener OpenChecker) *Resolver {
	return &Resolver{opener: opener}
}

// NewSource allocates a fresh source id for a config provider to tag its
// entries with.
func (r *Resolver) NewSource() uint64 {
	return r.nextSrc.Add(1)
}

// Set atomically replaces every entry tagged with source with the
// entries derived from mappings. Entries for every other source are
// untouched (spec.md's "Alias source isolation" property).
func (r *Resolver) Set(source uint64, mappings []Mapping) error {
	next := make([]Entry, 0, len(mappings))
	for _, m := range mappings {
		aliasPath := m.AliasPath
		if aliasPath == "" {
			aliasPath = synthesizeAlias(m.HostPath)
		}
		if err := validateAliasPath(aliasPath); err != nil {
			return fmt.Errorf("alias %q: %w", aliasPath, err)
		}
		if r.opener != nil && !r.opener.CanOpen(m.HostPath) {
			continue
		}
		next = append(next, Entry{Source: source, AliasPath: aliasPath, HostPath: m.HostPath})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.entries[:0:0]
	for _, e := range r.entries {
		if e.Source != source {
			kept = append(kept, e)
		}
	}
	r.entries = append(kept, next...)
	return nil
}

// validateAliasPath enforces spec.md §4.6: non-empty, leading '/', no
// control characters (codepoint < 32).
func validateAliasPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty alias path")
	}
	if !strings.HasPrefix(p, "/") {
		return fmt.Errorf("alias path must start with '/'")
	}
	for _, r := range p {
		if r < 32 {
			return fmt.Errorf("alias path contains control character")
		}
	}
	return nil
}

// synthesizeAlias derives a virtual path from a host path per spec.md
// §4.6: "C:\foo\bar" → "/C/foo/bar"; '\' → '/'; strip "\\?\" prefix;
// drop trailing '/'; ensure leading '/'.
func synthesizeAlias(hostPath string) string {
	p := strings.TrimPrefix(hostPath, `\\?\`)
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.ReplaceAll(p, ":", "")
	p = strings.TrimSuffix(p, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Resolve returns the host path for query, resolved by longest-prefix
// match on a '/' boundary (spec.md §4.6/I5), or ok=false when no entry
// matches.
func (r *Resolver) Resolve(query string) (hostPath string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Entry
	for i := range r.entries {
		e := &r.entries[i]
		if !isPrefixMatch(e.AliasPath, query) {
			continue
		}
		if best == nil || len(e.AliasPath) > len(best.AliasPath) {
			best = e
		}
	}
	if best == nil {
		return "", false
	}

	remainder := query[len(best.AliasPath):]
	remainder = strings.ReplaceAll(remainder, "/", `\`)
	return best.HostPath + remainder, true
}

// isPrefixMatch reports whether alias is either exactly query, or a
// proper prefix of query ending at a '/' boundary in query.
func isPrefixMatch(alias, query string) bool {
	if alias == query {
		return true
	}
	if !strings.HasPrefix(query, alias) {
		return false
	}
	// alias is a proper prefix: the next query byte must be '/', or
	// alias itself must already end in '/', so the match lands exactly
	// on a path-segment boundary ("/a" must not match "/ab").
	if strings.HasSuffix(alias, "/") {
		return true
	}
	return query[len(alias)] == '/'
}
