// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askatlas_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askatlas_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// FlowDuration tracks prompt flow invocation duration.
	FlowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "askatlas_flow_duration_seconds",
			Help:    "Prompt flow invocation duration",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"flow", "outcome"},
	)

	// FlowInvocationsTotal counts prompt flow invocations by outcome.
	FlowInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askatlas_flow_invocations_total",
			Help: "Total prompt flow invocations",
		},
		[]string{"flow", "outcome"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askatlas_llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SessionsActive tracks live conversation sessions.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "askatlas_sessions_active",
			Help: "Number of live conversation sessions",
		},
	)

	// MessagesTotal tracks messages appended to sessions.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askatlas_messages_total",
			Help: "Total messages appended to sessions",
		},
		[]string{"role"},
	)

	// SubmitsRejectedTotal counts submits dropped by the session guards.
	SubmitsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askatlas_submits_rejected_total",
			Help: "Submits ignored by the session state machine",
		},
		[]string{"reason"},
	)

	// FallbacksTotal counts replies degraded to a fixed fallback message.
	FallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "askatlas_fallbacks_total",
			Help: "Assistant messages replaced by a fallback text",
		},
		[]string{"stage"},
	)

	// StreamConnectionsActive tracks open SSE and WebSocket connections.
	StreamConnectionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "askatlas_stream_connections_active",
			Help: "Number of open event stream connections",
		},
		[]string{"transport"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordFlow records metrics for one prompt flow invocation.
func RecordFlow(flow, outcome string, duration float64) {
	FlowDuration.WithLabelValues(flow, outcome).Observe(duration)
	FlowInvocationsTotal.WithLabelValues(flow, outcome).Inc()
}

// RecordTokens records provider token usage.
func RecordTokens(model string, tokensIn, tokensOut int) {
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// IncrementStreamConnections increments the open connection count for a transport.
func IncrementStreamConnections(transport string) {
	StreamConnectionsActive.WithLabelValues(transport).Inc()
}

// DecrementStreamConnections decrements the open connection count for a transport.
func DecrementStreamConnections(transport string) {
	StreamConnectionsActive.WithLabelValues(transport).Dec()
}
