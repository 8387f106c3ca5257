package observability

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Счётчик вызовов методов репозитория
	RepositoryCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repository_calls_total",
			Help: "Total number of repository method calls",
		},
		[]string{"method", "status"},
	)

	// Гистограмма времени выполнения запросов
	RepositoryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "repository_duration_seconds",
			Help:    "Duration of repository method calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	LedgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger primitives executed, by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	LedgerMinutes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_minutes",
			Help:    "Minutes moved per ledger operation",
			Buckets: []float64{5, 15, 30, 60, 90, 120, 240, 480},
		},
		[]string{"operation"},
	)

	WorkflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Request and proposal state transitions, by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	OutboxDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dispatches_total",
			Help: "Outbox events handed to the broker, by topic and outcome",
		},
		[]string{"topic", "status"},
	)
)

// InitMetrics registers the collectors and serves them on addr in the background.
func InitMetrics(addr string) {
	prometheus.MustRegister(RepositoryCalls, RepositoryDuration, LedgerOperations, LedgerMinutes, WorkflowTransitions, OutboxDispatches)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
}

// Outcome is the status label for an error.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
