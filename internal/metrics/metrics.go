// Package metrics exposes Prometheus counters for turns, rounds, tool calls
// and image synthesis.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waifu_turns_total",
			Help: "Total number of turns by outcome",
		},
		[]string{"outcome"},
	)

	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waifu_turn_duration_seconds",
			Help:    "Turn duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"outcome"},
	)

	roundsPerTurn = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waifu_turn_rounds",
			Help:    "Number of stream openings per turn",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
	)

	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waifu_tool_calls_total",
			Help: "Total number of tool calls by action and status",
		},
		[]string{"action", "status"},
	)

	imageRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waifu_image_requests_total",
			Help: "Total number of image synthesis attempts by backend, class and status",
		},
		[]string{"backend", "class", "status"},
	)

	imageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waifu_image_duration_seconds",
			Help:    "Image synthesis duration in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"backend"},
	)

	backgroundJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waifu_background_jobs_total",
			Help: "Total number of detached jobs (summaries, suggestions) by kind and status",
		},
		[]string{"kind", "status"},
	)

	saveErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "waifu_save_errors_total",
			Help: "Total number of failed session saves",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the collectors with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			turnsTotal,
			turnDuration,
			roundsPerTurn,
			toolCallsTotal,
			imageRequestsTotal,
			imageDuration,
			backgroundJobsTotal,
			saveErrorsTotal,
		)
	})
}

// Handler returns an HTTP handler for Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTurn records a finished turn. outcome is "ok", "failed" or "ending".
func RecordTurn(outcome string, rounds int, duration time.Duration) {
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	roundsPerTurn.Observe(float64(rounds))
}

// RecordToolCall records one dispatched action.
func RecordToolCall(action, status string) {
	toolCallsTotal.WithLabelValues(action, status).Inc()
}

// RecordImage records one synthesis attempt against a backend.
func RecordImage(backend, class, status string, duration time.Duration) {
	imageRequestsTotal.WithLabelValues(backend, class, status).Inc()
	imageDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordBackgroundJob records a detached job outcome.
func RecordBackgroundJob(kind, status string) {
	backgroundJobsTotal.WithLabelValues(kind, status).Inc()
}

// RecordSaveError counts a failed persistence attempt.
func RecordSaveError() {
	saveErrorsTotal.Inc()
}
