package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledMetricsAreNoOps(t *testing.T) {
	Init(false)
	assert.False(t, IsEnabled())
	assert.Nil(t, GetRegistry())

	m := NewRPCMetrics()
	assert.Nil(t, m)

	// Nil receiver methods must not panic.
	m.RecordCall("nfs", "READ", "OK", time.Millisecond)
	m.SetActiveMounts(3)
	m.RecordBytesRead(100)
	m.RecordBytesWritten(100)
}

func TestEnabledMetricsRecordCalls(t *testing.T) {
	Init(true)
	defer Init(false)

	m := NewRPCMetrics()
	require.NotNil(t, m)

	m.RecordCall("nfs", "READ", "OK", 5*time.Millisecond)
	m.SetActiveMounts(2)
	m.RecordBytesRead(4096)
	m.RecordBytesWritten(2048)

	mfs, err := GetRegistry().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range mfs {
		if mf.GetName() == "nfsd_rpc_calls_total" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestMetricsServerServesMetricsAndHealthz(t *testing.T) {
	Init(true)
	defer Init(false)

	NewRPCMetrics()

	ready := true
	srv, err := NewServer("127.0.0.1:0", func() bool { return ready })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ready = false
	resp2, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp2.StatusCode)

	resp3, err := http.Get("http://" + srv.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
	body, err := io.ReadAll(resp3.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "nfsd_rpc_calls_total")
}
