package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveStage("planner", "ok", time.Second)
	m.IncInvokeAttempt("planning", "openai", OutcomeError)
	m.IncInvokeExhausted("planning")
	m.IncRecoveryFailure()
	m.IncSearchQuery(OutcomeSuccess)
	m.IncJob("completed")
	m.IncGraphWriteFailure()
	m.ObserveIterations(2)
	assert.Nil(t, m.Registry())
}

func TestCounters(t *testing.T) {
	m := New()
	m.IncInvokeAttempt("planning", "openai", OutcomeError)
	m.IncInvokeAttempt("planning", "openai", OutcomeError)
	m.IncInvokeAttempt("planning", "gemini", OutcomeSuccess)
	m.IncGraphWriteFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.InvokeAttempts.WithLabelValues("planning", "openai", OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvokeAttempts.WithLabelValues("planning", "gemini", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GraphWriteFailures))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.IncJob("completed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `dossier_jobs_finished_total{status="completed"} 1`)
}
