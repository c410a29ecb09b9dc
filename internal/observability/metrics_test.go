package observability

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classrelay/internal/chunk"
	"classrelay/internal/core"
	"classrelay/internal/relay"
)

func TestRelayHooks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	hooks := m.RelayHooks()

	ctx := hooks.OnRequestStart(context.Background(), relay.RequestInfo{Method: "GET", Action: "getAssessments"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayInFlight))

	hooks.OnRequestEnd(ctx, relay.ResponseInfo{
		RequestInfo: relay.RequestInfo{Method: "GET", Action: "getAssessments"},
		Duration:    200 * time.Millisecond,
		Redirected:  true,
		Status:      core.StatusSuccess,
	})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.relayInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayRequests.WithLabelValues("GET", "getAssessments", "success")))

	hooks.OnRequestStart(ctx, relay.RequestInfo{Method: "POST"})
	hooks.OnRequestEnd(ctx, relay.ResponseInfo{
		RequestInfo: relay.RequestInfo{Method: "POST"},
		Err:         core.NewNetworkFault("timeout", nil),
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.relayRequests.WithLabelValues("POST", "none", "network_fault")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.relayDuration))
}

func TestRelayOutcome(t *testing.T) {
	assert.Equal(t, "success", relayOutcome(relay.ResponseInfo{Status: core.StatusSuccess}))
	assert.Equal(t, "backend_error", relayOutcome(relay.ResponseInfo{Status: core.StatusError}))
	assert.Equal(t, "malformed_backend_response", relayOutcome(relay.ResponseInfo{Status: core.StatusError, Malformed: true}))
	assert.Equal(t, "payload_too_large", relayOutcome(relay.ResponseInfo{Err: core.NewPayloadTooLargeError(10, 5)}))
}

func TestActionLabel(t *testing.T) {
	tests := []struct {
		action string
		want   string
	}{
		{action: "", want: "none"},
		{action: "getAssessments", want: "getAssessments"},
		{action: chunk.ActionUploadChunk, want: "uploadChunk"},
		{action: "getAssessments2", want: "other"},
		{action: strings.Repeat("x", 500), want: "other"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, actionLabel(tt.action), "action %q", tt.action)
	}
}

func TestRelayHooks_UnknownActionsShareOneSeries(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	hooks := m.RelayHooks()

	for i := 0; i < 50; i++ {
		info := relay.RequestInfo{Method: "GET", Action: fmt.Sprintf("made-up-%d", i)}
		ctx := hooks.OnRequestStart(context.Background(), info)
		hooks.OnRequestEnd(ctx, relay.ResponseInfo{RequestInfo: info, Status: core.StatusSuccess})
	}

	assert.Equal(t, 1, testutil.CollectAndCount(m.relayRequests))
	assert.Equal(t, 50.0, testutil.ToFloat64(m.relayRequests.WithLabelValues("GET", "other", "success")))
}

func TestUploadHook(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	hook := m.UploadHook()

	hook(context.Background(), chunk.UploadInfo{TotalChunks: 4, Duration: time.Second})
	hook(context.Background(), chunk.UploadInfo{TotalChunks: 2, Err: core.NewSessionAbortedError(1, "quota", nil)})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("session_aborted_mid_upload")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.uploadChunks))
}

func TestNewMetrics_DoubleRegisterPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	require.Panics(t, func() { NewMetrics(reg) })
}

func TestNewPrometheusMetrics_Shared(t *testing.T) {
	assert.Same(t, NewPrometheusMetrics(), NewPrometheusMetrics())
}
