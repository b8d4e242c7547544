package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Invocation outcomes recorded per attempt
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Metrics holds the collectors for one dossier process.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration      *prometheus.HistogramVec
	InvokeAttempts     *prometheus.CounterVec
	InvokeExhausted    *prometheus.CounterVec
	RecoveryFailures   prometheus.Counter
	SearchQueries      *prometheus.CounterVec
	JobsTotal          *prometheus.CounterVec
	GraphWriteFailures prometheus.Counter
	PipelineIterations prometheus.Histogram
}

// New registers collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dossier",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stage executions",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"stage", "status"}),
		InvokeAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "llm",
			Name:      "invoke_attempts_total",
			Help:      "Generation attempts by task, provider and outcome",
		}, []string{"task", "provider", "outcome"}),
		InvokeExhausted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "llm",
			Name:      "invoke_exhausted_total",
			Help:      "Invocations that failed on every attempt",
		}, []string{"task"}),
		RecoveryFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "llm",
			Name:      "recovery_failures_total",
			Help:      "Generation outputs that could not be parsed",
		}),
		SearchQueries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "search",
			Name:      "queries_total",
			Help:      "Search queries executed by outcome",
		}, []string{"outcome"}),
		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "jobs",
			Name:      "finished_total",
			Help:      "Research jobs by terminal status",
		}, []string{"status"}),
		GraphWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "graph",
			Name:      "write_failures_total",
			Help:      "Identity graph statements that failed and were skipped",
		}),
		PipelineIterations: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dossier",
			Subsystem: "pipeline",
			Name:      "iterations",
			Help:      "Research iterations per completed run",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

func (m *Metrics) IncInvokeAttempt(task, provider, outcome string) {
	if m == nil {
		return
	}
	m.InvokeAttempts.WithLabelValues(task, provider, outcome).Inc()
}

func (m *Metrics) IncInvokeExhausted(task string) {
	if m == nil {
		return
	}
	m.InvokeExhausted.WithLabelValues(task).Inc()
}

func (m *Metrics) IncRecoveryFailure() {
	if m == nil {
		return
	}
	m.RecoveryFailures.Inc()
}

func (m *Metrics) IncSearchQuery(outcome string) {
	if m == nil {
		return
	}
	m.SearchQueries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncJob(status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncGraphWriteFailure() {
	if m == nil {
		return
	}
	m.GraphWriteFailures.Inc()
}

func (m *Metrics) ObserveIterations(n int) {
	if m == nil {
		return
	}
	m.PipelineIterations.Observe(float64(n))
}
