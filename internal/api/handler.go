// Package api exposes the research service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ppiankov/dossier/internal/identity"
	"github.com/ppiankov/dossier/internal/jobs"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/service"
)

// DefaultBackgroundRuns bounds concurrently running research jobs
const DefaultBackgroundRuns = 2

// Service is the part of the research service the API needs
type Service interface {
	Start(ctx context.Context, targetName, targetContext string) (string, error)
	Run(ctx context.Context, id string) (*service.Result, error)
	Status(ctx context.Context, id string) (*service.Status, error)
	Jobs(ctx context.Context) ([]*service.Status, error)
	Result(ctx context.Context, id string) (*service.Result, error)
	Report(ctx context.Context, id string) (string, error)
	Summary(ctx context.Context, id string) (*service.Summary, error)
	Risks(ctx context.Context, id string) ([]model.RiskFlag, error)
	Graph(ctx context.Context) (*identity.Graph, error)
}

// ResearchRequest is the body of POST /api/research
type ResearchRequest struct {
	TargetName    string `json:"target_name"`
	TargetContext string `json:"target_context"`
}

// ResearchResponse acknowledges a started job
type ResearchResponse struct {
	JobID      string `json:"job_id"`
	TargetName string `json:"target_name"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// ResultResponse condenses a completed job
type ResultResponse struct {
	TargetName       string  `json:"target_name"`
	Iterations       int     `json:"iterations"`
	TotalFacts       int     `json:"total_facts"`
	TotalRisks       int     `json:"total_risks"`
	AvgConfidence    float64 `json:"avg_confidence"`
	ConnectionsCount int     `json:"connections_count"`
	QueriesExecuted  int     `json:"queries_executed"`
	FinalReport      string  `json:"final_report"`
}

// GraphResponse is the identity graph; Error is set when it could not be read
type GraphResponse struct {
	Nodes         []identity.Node         `json:"nodes"`
	Relationships []identity.Relationship `json:"relationships"`
	Error         string                  `json:"error,omitempty"`
}

// Handler serves the research API
type Handler struct {
	svc     Service
	metrics http.Handler
	logger  *slog.Logger

	// background runs outlive the request that started them
	baseCtx context.Context
	slots   chan struct{}
	wg      sync.WaitGroup
}

// NewHandler creates a handler. Background research runs use baseCtx;
// metricsHandler may be nil.
func NewHandler(baseCtx context.Context, svc Service, metricsHandler http.Handler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:     svc,
		metrics: metricsHandler,
		logger:  logger,
		baseCtx: baseCtx,
		slots:   make(chan struct{}, DefaultBackgroundRuns),
	}
}

// Routes builds the router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Post("/research", h.handleCreate)
		r.Get("/research", h.handleList)
		r.Get("/research/{id}/status", h.handleStatus)
		r.Get("/research/{id}/result", h.handleResult)
		r.Get("/reports/{id}", h.handleReport)
		r.Get("/reports/{id}/summary", h.handleSummary)
		r.Get("/reports/{id}/risks", h.handleRisks)
		r.Get("/graph/{id}", h.handleGraph)
	})
	return r
}

// Wait blocks until every background research run has finished
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req ResearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.TargetName = strings.TrimSpace(req.TargetName)
	if req.TargetName == "" {
		writeError(w, http.StatusBadRequest, "target_name is required")
		return
	}

	id, err := h.svc.Start(r.Context(), req.TargetName, req.TargetContext)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "start research failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not start research")
		return
	}
	h.runInBackground(id)

	writeJSON(w, http.StatusAccepted, ResearchResponse{
		JobID:      id,
		TargetName: req.TargetName,
		Status:     "started",
		Message:    fmt.Sprintf("Research started for '%s'. Poll /api/research/%s/status for updates.", req.TargetName, id),
	})
}

func (h *Handler) runInBackground(id string) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		select {
		case h.slots <- struct{}{}:
		case <-h.baseCtx.Done():
			return
		}
		defer func() { <-h.slots }()

		if _, err := h.svc.Run(h.baseCtx, id); err != nil {
			h.logger.Error("background research failed", slog.String("job_id", id), slog.Any("error", err))
		}
	}()
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	all, err := h.svc.Jobs(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list jobs failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, r, err, "Research job not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, r, err, "Result not available yet")
		return
	}
	writeJSON(w, http.StatusOK, ResultResponse{
		TargetName:       res.TargetName,
		Iterations:       res.Iterations,
		TotalFacts:       res.ConfidenceStats.TotalFacts,
		TotalRisks:       len(res.RiskFlags),
		AvgConfidence:    res.ConfidenceStats.AvgConfidence,
		ConnectionsCount: len(res.Connections),
		QueriesExecuted:  res.QueriesExecuted,
		FinalReport:      res.FinalReport,
	})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, r, err, "Report not available")
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, r, err, "Report not available")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) handleRisks(w http.ResponseWriter, r *http.Request) {
	risks, err := h.svc.Risks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeLookupError(w, r, err, "Report not available")
		return
	}
	writeJSON(w, http.StatusOK, risks)
}

// handleGraph returns the whole identity graph; the id is accepted for
// route compatibility. Read failures are reported in the body.
func (h *Handler) handleGraph(w http.ResponseWriter, r *http.Request) {
	resp := GraphResponse{Nodes: []identity.Node{}, Relationships: []identity.Relationship{}}
	g, err := h.svc.Graph(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "graph read failed", slog.Any("error", err))
		resp.Error = err.Error()
	} else {
		resp.Nodes, resp.Relationships = g.Nodes, g.Relationships
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeLookupError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	switch {
	case errors.Is(err, jobs.ErrNotFound), errors.Is(err, service.ErrNoResult):
		writeError(w, http.StatusNotFound, notFound)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.DebugContext(r.Context(), "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
