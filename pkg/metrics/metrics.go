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
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMTurnDuration tracks language model turn latency.
	LLMTurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_turn_duration_seconds",
			Help:    "LLM turn duration",
			Buckets: []float64{.5, 1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// QuestionsTotal tracks answered questions by outcome.
	QuestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "questions_total",
			Help: "Total questions by outcome",
		},
		[]string{"outcome"},
	)

	// QueryExecutionsTotal tracks query executions against the data source.
	QueryExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_executions_total",
			Help: "Total generated query executions",
		},
		[]string{"result"},
	)

	// QueryAutoFixTotal tracks data source auto-fix attempts.
	QueryAutoFixTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_autofix_total",
			Help: "Total automatic query fix attempts",
		},
		[]string{"result"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// RepliesPublishedTotal tracks replies published to NATS.
	RepliesPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replies_published_total",
			Help: "Replies published to the message stream",
		},
		[]string{"status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMTurn records metrics for one LLM turn.
func RecordLLMTurn(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMTurnDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordQuestion records the outcome of a question.
func RecordQuestion(outcome string) {
	QuestionsTotal.WithLabelValues(outcome).Inc()
}

// RecordExecution records a query execution result.
func RecordExecution(result string) {
	QueryExecutionsTotal.WithLabelValues(result).Inc()
}

// RecordAutoFix records an auto-fix attempt result.
func RecordAutoFix(result string) {
	QueryAutoFixTotal.WithLabelValues(result).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
