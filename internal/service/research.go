// Package service runs research jobs end to end: it creates job records,
// drives the pipeline, saves reports and feeds the identity graph.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/dossier/internal/identity"
	"github.com/ppiankov/dossier/internal/jobs"
	"github.com/ppiankov/dossier/internal/metrics"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/score"
)

var (
	// ErrJobNotRunnable is returned when Run is called on a job that is not pending
	ErrJobNotRunnable = errors.New("job is not pending")
	// ErrNoResult is returned when a job has not completed
	ErrNoResult = errors.New("job has no result")
)

// Runner executes the research pipeline
type Runner interface {
	Run(ctx context.Context, initial *model.ResearchState) (*model.ResearchState, error)
}

// Options configures a Research service
type Options struct {
	ReportsDir string
	Graph      identity.Backend
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Research manages the lifecycle of research jobs
type Research struct {
	runner     Runner
	jobs       jobs.Store
	graph      identity.Backend
	builder    *identity.Builder
	reportsDir string
	logger     *slog.Logger
	metrics    *metrics.Metrics

	now   func() time.Time
	newID func() string
}

// NewResearch creates the service. A nil opts.Graph disables graph building.
func NewResearch(runner Runner, store jobs.Store, opts Options) *Research {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Research{
		runner:     runner,
		jobs:       store,
		graph:      opts.Graph,
		reportsDir: opts.ReportsDir,
		logger:     logger,
		metrics:    opts.Metrics,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	if opts.Graph != nil {
		s.builder = identity.NewBuilder(opts.Graph, logger, opts.Metrics)
	}
	return s
}

// Result is the outcome of a completed job
type Result struct {
	TargetName      string             `json:"target_name"`
	Iterations      int                `json:"iterations"`
	FinalReport     string             `json:"final_report"`
	Facts           []model.Fact       `json:"facts"`
	RiskFlags       []model.RiskFlag   `json:"risk_flags"`
	Connections     []model.Connection `json:"connections"`
	ConfidenceStats score.Stats        `json:"confidence_stats"`
	QueriesExecuted int                `json:"search_queries_executed"`
}

// NewResult summarises a final research state
func NewResult(st *model.ResearchState) *Result {
	r := &Result{
		TargetName:      st.TargetName,
		Iterations:      st.Iteration,
		Facts:           st.ExtractedFacts,
		RiskFlags:       st.RiskFlags,
		Connections:     st.Connections,
		ConfidenceStats: score.AggregateStats(st.ExtractedFacts),
		QueriesExecuted: len(st.SearchHistory),
	}
	if st.FinalReport != nil {
		r.FinalReport = *st.FinalReport
	}
	return r
}

// Status is the externally visible state of a job
type Status struct {
	JobID       string          `json:"job_id"`
	TargetName  string          `json:"target_name"`
	Status      model.JobStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
	Error       string          `json:"error,omitempty"`
}

// Start records a pending job and returns its id. It does not run it.
func (s *Research) Start(ctx context.Context, targetName, targetContext string) (string, error) {
	targetName = strings.TrimSpace(targetName)
	if targetName == "" {
		return "", fmt.Errorf("target name is required")
	}

	now := s.now().UTC()
	job := &model.Job{
		ID:            s.newID(),
		TargetName:    targetName,
		TargetContext: targetContext,
		Status:        model.JobPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}

	s.metrics.IncJob(string(model.JobPending))
	s.logger.Info("research job created", slog.String("job_id", job.ID), slog.String("target", targetName))
	return job.ID, nil
}

// Run executes a pending job synchronously and returns its result.
// Only one caller can move a job out of pending. A pipeline failure
// marks the job failed and is returned.
func (s *Research) Run(ctx context.Context, id string) (*Result, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrJobNotRunnable, id, job.Status)
	}

	job.Status = model.JobRunning
	job.UpdatedAt = s.now().UTC()
	if err := s.jobs.UpdateIf(ctx, job, model.JobPending); err != nil {
		if errors.Is(err, jobs.ErrStatusChanged) {
			return nil, fmt.Errorf("%w: %w", ErrJobNotRunnable, err)
		}
		return nil, fmt.Errorf("mark job running: %w", err)
	}
	s.metrics.IncJob(string(model.JobRunning))
	s.logger.Info("research job started", slog.String("job_id", id), slog.String("target", job.TargetName))

	final, runErr := s.runner.Run(ctx, model.NewResearchState(job.TargetName, job.TargetContext))
	if runErr != nil {
		s.fail(ctx, job, runErr)
		return nil, runErr
	}

	result := NewResult(final)
	if path, err := s.saveReport(job, result.FinalReport); err != nil {
		s.logger.Warn("could not save report", slog.String("job_id", id), slog.Any("error", err))
	} else {
		job.ReportPath = path
	}
	s.buildGraph(ctx, job, final)

	job.Status = model.JobCompleted
	job.Result = final
	job.UpdatedAt = s.now().UTC()
	if err := s.jobs.UpdateIf(context.WithoutCancel(ctx), job, model.JobRunning); err != nil {
		err = fmt.Errorf("mark job completed: %w", err)
		s.fail(ctx, job, err)
		return nil, err
	}
	s.metrics.IncJob(string(model.JobCompleted))
	s.logger.Info("research job completed",
		slog.String("job_id", id),
		slog.Int("iterations", result.Iterations),
		slog.Int("facts", len(result.Facts)),
		slog.String("report", job.ReportPath))
	return result, nil
}

// fail records a running job as failed. The write outlives ctx so a
// cancelled run is still recorded.
func (s *Research) fail(ctx context.Context, job *model.Job, cause error) {
	job.Status = model.JobFailed
	job.Error = cause.Error()
	job.Result = nil
	job.UpdatedAt = s.now().UTC()
	if err := s.jobs.UpdateIf(context.WithoutCancel(ctx), job, model.JobRunning); err != nil {
		s.logger.Error("could not record job failure", slog.String("job_id", job.ID), slog.Any("error", err))
	}
	s.metrics.IncJob(string(model.JobFailed))
	s.logger.Error("research job failed", slog.String("job_id", job.ID), slog.Any("error", cause))
}

// Research starts and runs a job for one target, returning the final job record
func (s *Research) Research(ctx context.Context, targetName, targetContext string) (*model.Job, error) {
	id, err := s.Start(ctx, targetName, targetContext)
	if err != nil {
		return nil, err
	}
	if _, err := s.Run(ctx, id); err != nil {
		job, getErr := s.jobs.Get(context.WithoutCancel(ctx), id)
		if getErr != nil {
			return nil, err
		}
		return job, err
	}
	return s.jobs.Get(ctx, id)
}

// Job returns the stored job record
func (s *Research) Job(ctx context.Context, id string) (*model.Job, error) {
	return s.jobs.Get(ctx, id)
}

// Jobs lists the status of every job, newest first
func (s *Research) Jobs(ctx context.Context) ([]*Status, error) {
	all, err := s.jobs.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Status, len(all))
	for i, job := range all {
		out[i] = statusOf(job)
	}
	return out, nil
}

// Status reports a job's lifecycle state
func (s *Research) Status(ctx context.Context, id string) (*Status, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return statusOf(job), nil
}

func statusOf(job *model.Job) *Status {
	st := &Status{
		JobID:      job.ID,
		TargetName: job.TargetName,
		Status:     job.Status,
		CreatedAt:  job.CreatedAt,
		Error:      job.Error,
	}
	if job.Status.Terminal() {
		completed := job.UpdatedAt
		st.CompletedAt = &completed
	}
	return st
}

// Result returns the result of a completed job, or ErrNoResult
func (s *Research) Result(ctx context.Context, id string) (*Result, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Result == nil {
		return nil, ErrNoResult
	}
	return NewResult(job.Result), nil
}

// Graph reads the identity graph
func (s *Research) Graph(ctx context.Context) (*identity.Graph, error) {
	if s.graph == nil {
		return nil, identity.ErrGraphDisabled
	}
	return s.graph.FullGraph(ctx)
}

var fileNameReplacer = strings.NewReplacer(" ", "_", "/", "_", `\`, "_")

// ReportFileName is <Target_Name>_<first 8 chars of id>.md
func ReportFileName(targetName, id string) string {
	return fmt.Sprintf("%s_%s.md", fileNameReplacer.Replace(targetName), id[:min(8, len(id))])
}

func (s *Research) saveReport(job *model.Job, report string) (string, error) {
	if s.reportsDir == "" || report == "" {
		return "", nil
	}
	if err := os.MkdirAll(s.reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("create reports dir: %w", err)
	}
	path := filepath.Join(s.reportsDir, ReportFileName(job.TargetName, job.ID))
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	s.logger.Info("report saved", slog.String("path", path))
	return path, nil
}

// buildGraph never fails the job
func (s *Research) buildGraph(ctx context.Context, job *model.Job, final *model.ResearchState) {
	if s.builder == nil {
		return
	}
	s.builder.Build(ctx, job.TargetName, final.ExtractedFacts, final.Connections)
}
