// Package metrics provides Prometheus observability for nfsd: RPC call
// counters/histograms by program/procedure/status, active mount count,
// and bytes read/written, served over a small chi-routed HTTP mux
// alongside a liveness probe — mirroring the teacher's pkg/metrics +
// Prometheus registration pattern, scaled down to this server's single
// concern (no control-plane REST API).
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	enabled  atomic.Bool
	regMu    sync.RWMutex
	registry *prometheus.Registry
)

// Init enables metrics collection, creating a fresh registry. Calling
// Init(false) disables collection; every metric method then becomes a
// no-op, matching the teacher's "pass nil for zero overhead" contract.
func Init(enable bool) {
	enabled.Store(enable)

	regMu.Lock()
	defer regMu.Unlock()
	if !enable {
		registry = nil
		return
	}
	registry = prometheus.NewRegistry()
}

// IsEnabled reports whether metrics collection is active.
func IsEnabled() bool {
	return enabled.Load()
}

// GetRegistry returns the active registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	regMu.RLock()
	defer regMu.RUnlock()
	return registry
}
