// Package observability exposes Prometheus metrics for relay calls and
// chunked uploads through the relay and uploader hooks.
package observability

import (
	"context"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"classrelay/internal/chunk"
	"classrelay/internal/core"
	"classrelay/internal/relay"
)

// knownActions are the backend actions that get their own label value.
// Actions come from clients, so anything else is counted as "other".
var knownActions = map[string]struct{}{
	chunk.ActionUploadChunk: {},
	"createAssessment":      {},
	"deleteAssessment":      {},
	"getAssessments":        {},
	"getMyScores":           {},
	"getRefImage":           {},
	"getSubmissions":        {},
	"submitAssignment":      {},
	"toggleScorePublic":     {},
	"toggleVisibility":      {},
	"updateAssessment":      {},
	"updateDeadline":        {},
	"updateScore":           {},
	"uploadRefMaterial":     {},
	"verifyTeacher":         {},
}

// Metrics holds the collectors fed by the hooks
type Metrics struct {
	relayRequests  *prometheus.CounterVec
	relayDuration  *prometheus.HistogramVec
	relayInFlight  prometheus.Gauge
	uploads        *prometheus.CounterVec
	uploadChunks   prometheus.Histogram
	uploadDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		relayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classrelay_relay_requests_total",
			Help: "Relayed backend calls by method, action and outcome",
		}, []string{"method", "action", "outcome"}),
		relayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "classrelay_relay_request_duration_seconds",
			Help:    "End-to-end duration of relayed calls including the redirect hop",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"method", "redirected"}),
		relayInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "classrelay_relay_requests_in_flight",
			Help: "Relayed calls currently waiting on the backend",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classrelay_uploads_total",
			Help: "Chunked upload sessions by outcome",
		}, []string{"outcome"}),
		uploadChunks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "classrelay_upload_chunks",
			Help:    "Number of chunks per upload session",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "classrelay_upload_duration_seconds",
			Help:    "Duration of chunked upload sessions",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
	}
	reg.MustRegister(m.relayRequests, m.relayDuration, m.relayInFlight, m.uploads, m.uploadChunks, m.uploadDuration)
	return m
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// NewPrometheusMetrics returns the metrics registered with the default
// registry, which is what the /metrics endpoint serves. Every call returns
// the same collectors.
func NewPrometheusMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// RelayHooks returns hooks that count and time every relayed call,
// including the chunk calls of uploads.
func (m *Metrics) RelayHooks() relay.Hooks {
	return relay.Hooks{
		OnRequestStart: func(ctx context.Context, _ relay.RequestInfo) context.Context {
			m.relayInFlight.Inc()
			return ctx
		},
		OnRequestEnd: func(_ context.Context, info relay.ResponseInfo) {
			m.relayInFlight.Dec()
			m.relayRequests.WithLabelValues(info.Method, actionLabel(info.Action), relayOutcome(info)).Inc()
			m.relayDuration.WithLabelValues(info.Method, strconv.FormatBool(info.Redirected)).Observe(info.Duration.Seconds())
		},
	}
}

// UploadHook returns an observer for finished uploads
func (m *Metrics) UploadHook() func(ctx context.Context, info chunk.UploadInfo) {
	return func(_ context.Context, info chunk.UploadInfo) {
		outcome := "success"
		if info.Err != nil {
			outcome = errorOutcome(info.Err)
		}
		m.uploads.WithLabelValues(outcome).Inc()
		m.uploadChunks.Observe(float64(info.TotalChunks))
		m.uploadDuration.Observe(info.Duration.Seconds())
	}
}

func relayOutcome(info relay.ResponseInfo) string {
	switch {
	case info.Err != nil:
		return errorOutcome(info.Err)
	case info.Malformed:
		return string(core.KindMalformedResponse)
	case info.Status == core.StatusSuccess:
		return "success"
	default:
		return string(core.KindBackendError)
	}
}

func errorOutcome(err error) string {
	if kind := core.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}

func actionLabel(action string) string {
	if action == "" {
		return "none"
	}
	if _, ok := knownActions[action]; ok {
		return action
	}
	return "other"
}
