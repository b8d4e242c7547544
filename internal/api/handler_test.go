package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/dossier/internal/identity"
	"github.com/ppiankov/dossier/internal/jobs"
	"github.com/ppiankov/dossier/internal/metrics"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/service"
)

type stubRunner struct {
	err error
}

func (r stubRunner) Run(ctx context.Context, initial *model.ResearchState) (*model.ResearchState, error) {
	if r.err != nil {
		return nil, r.err
	}
	final := initial.Clone()
	report := "# Deep Research Report: " + initial.TargetName
	final.Iteration = 1
	final.FinalReport = &report
	final.SearchHistory = []model.SearchResult{{Query: "q1"}}
	final.ExtractedFacts = []model.Fact{
		{Category: "professional", Claim: "CEO of Acme", Entities: []string{"Acme"}, Confidence: 0.8},
	}
	final.RiskFlags = []model.RiskFlag{
		{RiskCategory: "legal", Severity: model.SeverityLow, Description: "minor dispute"},
		{RiskCategory: "financial", Severity: model.SeverityCritical, Description: "fraud"},
	}
	final.Connections = []model.Connection{{SourceEntity: initial.TargetName, TargetEntity: "Acme", Relationship: "CEO_OF"}}
	return final, nil
}

func newTestHandler(t *testing.T, runner service.Runner, graph identity.Backend) *Handler {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	svc := service.NewResearch(runner, jobs.NewMemoryStore(), service.Options{
		ReportsDir: t.TempDir(),
		Graph:      graph,
		Logger:     logger,
	})
	return NewHandler(context.Background(), svc, metrics.New().Handler(), logger)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func startJob(t *testing.T, h *Handler, routes http.Handler) string {
	t.Helper()
	rec := do(t, routes, http.MethodPost, "/api/research", `{"target_name":" Jane Doe ","target_context":"CEO"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[ResearchResponse](t, rec)
	assert.Equal(t, "Jane Doe", resp.TargetName)
	assert.Equal(t, "started", resp.Status)
	assert.Contains(t, resp.Message, "/api/research/"+resp.JobID+"/status")
	h.Wait()
	return resp.JobID
}

func TestHandler_ResearchLifecycle(t *testing.T) {
	graph := identity.NewMemoryStore()
	h := newTestHandler(t, stubRunner{}, graph)
	routes := h.Routes()

	id := startJob(t, h, routes)

	rec := do(t, routes, http.MethodGet, "/api/research/"+id+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[map[string]any](t, rec)
	assert.Equal(t, "completed", st["status"])
	assert.Equal(t, id, st["job_id"])
	assert.NotNil(t, st["completed_at"])

	rec = do(t, routes, http.MethodGet, "/api/research/"+id+"/result", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ResultResponse{
		TargetName:       "Jane Doe",
		Iterations:       1,
		TotalFacts:       1,
		TotalRisks:       2,
		AvgConfidence:    0.8,
		ConnectionsCount: 1,
		QueriesExecuted:  1,
		FinalReport:      "# Deep Research Report: Jane Doe",
	}, decode[ResultResponse](t, rec))

	rec = do(t, routes, http.MethodGet, "/api/reports/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# Deep Research Report: Jane Doe", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")

	rec = do(t, routes, http.MethodGet, "/api/reports/"+id+"/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decode[service.Summary](t, rec)
	assert.Equal(t, 1, sum.CriticalRisks)
	assert.Equal(t, 2, sum.TotalRisks)

	rec = do(t, routes, http.MethodGet, "/api/reports/"+id+"/risks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	risks := decode[[]model.RiskFlag](t, rec)
	require.Len(t, risks, 2)
	assert.Equal(t, model.SeverityCritical, risks[0].Severity)

	rec = do(t, routes, http.MethodGet, "/api/research", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]map[string]any](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, id, listed[0]["job_id"])
	assert.Equal(t, "completed", listed[0]["status"])

	rec = do(t, routes, http.MethodGet, "/api/graph/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	g := decode[GraphResponse](t, rec)
	assert.Empty(t, g.Error)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Relationships, 1)
}

func TestHandler_FailedJob(t *testing.T) {
	h := newTestHandler(t, stubRunner{err: errors.New("stage planner: boom")}, nil)
	routes := h.Routes()

	id := startJob(t, h, routes)

	rec := do(t, routes, http.MethodGet, "/api/research/"+id+"/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[map[string]any](t, rec)
	assert.Equal(t, "failed", st["status"])
	assert.Equal(t, "stage planner: boom", st["error"])

	for _, path := range []string{
		"/api/research/" + id + "/result",
		"/api/reports/" + id,
		"/api/reports/" + id + "/summary",
		"/api/reports/" + id + "/risks",
	} {
		rec := do(t, routes, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec = do(t, routes, http.MethodGet, "/api/graph/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	g := decode[GraphResponse](t, rec)
	assert.Equal(t, identity.ErrGraphDisabled.Error(), g.Error)
	assert.NotNil(t, g.Nodes)
}

func TestHandler_BadRequests(t *testing.T) {
	routes := newTestHandler(t, stubRunner{}, nil).Routes()

	rec := do(t, routes, http.MethodPost, "/api/research", `{"target_name":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, routes, http.MethodPost, "/api/research", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decode[map[string]string](t, rec)["detail"])

	rec = do(t, routes, http.MethodGet, "/api/research/missing/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Research job not found", decode[map[string]string](t, rec)["detail"])
}

func TestHandler_ListEmpty(t *testing.T) {
	routes := newTestHandler(t, stubRunner{}, nil).Routes()

	rec := do(t, routes, http.MethodGet, "/api/research", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandler_HealthAndMetrics(t *testing.T) {
	routes := newTestHandler(t, stubRunner{}, nil).Routes()

	rec := do(t, routes, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])

	rec = do(t, routes, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	h := newTestHandler(t, stubRunner{}, nil)
	srv := NewServer("127.0.0.1:0", h, slog.New(slog.DiscardHandler))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := fmt.Sprintf("http://%s/healthz", ln.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
