package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/dossier/internal/identity"
	"github.com/ppiankov/dossier/internal/jobs"
	"github.com/ppiankov/dossier/internal/model"
)

type fakeRunner struct {
	err   error
	calls int
}

func (f *fakeRunner) Run(ctx context.Context, initial *model.ResearchState) (*model.ResearchState, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	final := initial.Clone()
	report := "# Deep Research Report: " + initial.TargetName
	final.Iteration = 2
	final.Status = model.StatusDone
	final.FinalReport = &report
	final.SearchHistory = []model.SearchResult{{Query: "q1"}, {Query: "q2"}, {Query: "q3"}}
	final.ExtractedFacts = []model.Fact{
		{Category: "professional", Claim: "CEO of Acme", Entities: []string{"Acme"}, Confidence: 0.9},
		{Category: "legal", Claim: "Sued in 2020", Confidence: 0.5},
	}
	final.RiskFlags = []model.RiskFlag{
		{RiskCategory: "legal", Severity: model.SeverityMedium, Description: "lawsuit"},
		{RiskCategory: "financial", Severity: model.SeverityCritical, Description: "fraud"},
	}
	final.Connections = []model.Connection{{SourceEntity: initial.TargetName, TargetEntity: "Acme", Relationship: "CEO_OF"}}
	return final, nil
}

func newService(t *testing.T, runner Runner, graph identity.Backend) (*Research, string) {
	t.Helper()
	return newServiceWithStore(t, runner, graph, jobs.NewMemoryStore())
}

func newServiceWithStore(t *testing.T, runner Runner, graph identity.Backend, store jobs.Store) (*Research, string) {
	t.Helper()
	dir := t.TempDir()
	s := NewResearch(runner, store, Options{
		ReportsDir: dir,
		Graph:      graph,
		Logger:     slog.New(slog.DiscardHandler),
	})
	ids := []string{"0123456789abcdef", "fedcba9876543210"}
	s.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	s.now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return s, dir
}

func TestResearch_StartAndRun(t *testing.T) {
	ctx := context.Background()
	graph := identity.NewMemoryStore()
	runner := &fakeRunner{}
	s, dir := newService(t, runner, graph)

	id, err := s.Start(ctx, "  Jane Doe ", "CEO")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", id)

	st, err := s.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobPending, st.Status)
	assert.Equal(t, "Jane Doe", st.TargetName)
	assert.Nil(t, st.CompletedAt)

	_, err = s.Result(ctx, id)
	assert.ErrorIs(t, err, ErrNoResult)

	result, err := s.Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 3, result.QueriesExecuted)
	assert.Equal(t, 2, result.ConfidenceStats.TotalFacts)
	assert.Equal(t, 0.7, result.ConfidenceStats.AvgConfidence)

	st, err = s.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, st.Status)
	require.NotNil(t, st.CompletedAt)

	job, err := s.Job(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Jane_Doe_01234567.md"), job.ReportPath)
	saved, err := os.ReadFile(job.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, "# Deep Research Report: Jane Doe", string(saved))

	g, err := s.Graph(ctx)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 2)
	assert.Len(t, g.Relationships, 1)

	_, err = s.Run(ctx, id)
	assert.ErrorIs(t, err, ErrJobNotRunnable)
	assert.Equal(t, 1, runner.calls)
}

func TestResearch_RunFailure(t *testing.T) {
	ctx := context.Background()
	s, dir := newService(t, &fakeRunner{err: errors.New("stage searcher: boom")}, nil)

	id, err := s.Start(ctx, "Jane Doe", "")
	require.NoError(t, err)

	_, err = s.Run(ctx, id)
	require.EqualError(t, err, "stage searcher: boom")

	st, err := s.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, st.Status)
	assert.Equal(t, "stage searcher: boom", st.Error)
	assert.NotNil(t, st.CompletedAt)

	_, err = s.Result(ctx, id)
	assert.ErrorIs(t, err, ErrNoResult)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = s.Graph(ctx)
	assert.ErrorIs(t, err, identity.ErrGraphDisabled)
}

// staleStore reports every job as pending, like a read that raced another runner
type staleStore struct {
	jobs.Store
}

func (s staleStore) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Status = model.JobPending
	return job, nil
}

func TestResearch_RunClaimsJobOnce(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{}
	s, _ := newServiceWithStore(t, runner, nil, staleStore{jobs.NewMemoryStore()})

	id, err := s.Start(ctx, "Jane Doe", "")
	require.NoError(t, err)
	_, err = s.Run(ctx, id)
	require.NoError(t, err)

	_, err = s.Run(ctx, id)
	assert.ErrorIs(t, err, ErrJobNotRunnable)
	assert.ErrorIs(t, err, jobs.ErrStatusChanged)
	assert.Equal(t, 1, runner.calls)
}

// completionFailStore rejects the write that marks a job completed
type completionFailStore struct {
	jobs.Store
}

func (s completionFailStore) UpdateIf(ctx context.Context, job *model.Job, from model.JobStatus) error {
	if job.Status == model.JobCompleted {
		return errors.New("disk full")
	}
	return s.Store.UpdateIf(ctx, job, from)
}

func TestResearch_CompletionWriteFailureMarksFailed(t *testing.T) {
	ctx := context.Background()
	s, _ := newServiceWithStore(t, &fakeRunner{}, nil, completionFailStore{jobs.NewMemoryStore()})

	id, err := s.Start(ctx, "Jane Doe", "")
	require.NoError(t, err)

	_, err = s.Run(ctx, id)
	require.EqualError(t, err, "mark job completed: disk full")

	st, err := s.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, st.Status)
	assert.Equal(t, "mark job completed: disk full", st.Error)

	_, err = s.Result(ctx, id)
	assert.ErrorIs(t, err, ErrNoResult)
}

func TestResearch_Jobs(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, &fakeRunner{}, nil)

	id, err := s.Start(ctx, "Jane Doe", "")
	require.NoError(t, err)

	list, err := s.Jobs(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].JobID)
	assert.Equal(t, model.JobPending, list[0].Status)
}

func TestResearch_Research(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, &fakeRunner{}, nil)

	job, err := s.Research(ctx, "Jane Doe", "")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	require.NotNil(t, job.Result)

	failing, _ := newService(t, &fakeRunner{err: errors.New("boom")}, nil)
	job, err = failing.Research(ctx, "Jane Doe", "")
	assert.Error(t, err)
	require.NotNil(t, job)
	assert.Equal(t, model.JobFailed, job.Status)
}

func TestResearch_Errors(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, &fakeRunner{}, nil)

	_, err := s.Start(ctx, "   ", "")
	assert.Error(t, err)

	_, err = s.Run(ctx, "nope")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	_, err = s.Status(ctx, "nope")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestReportFileName(t *testing.T) {
	assert.Equal(t, "Jane_Doe_01234567.md", ReportFileName("Jane Doe", "0123456789"))
	assert.Equal(t, "A_B_C_abc.md", ReportFileName("A/B C", "abc"))
}

func sampleResult(t *testing.T) *Result {
	t.Helper()
	final, err := (&fakeRunner{}).Run(context.Background(), model.NewResearchState("Jane Doe", ""))
	require.NoError(t, err)
	return NewResult(final)
}

func TestSummarize(t *testing.T) {
	r := sampleResult(t)
	r.RiskFlags = append(r.RiskFlags, model.RiskFlag{Severity: model.SeverityHigh}, model.RiskFlag{Severity: model.SeverityCritical})

	assert.Equal(t, Summary{
		Target:          "Jane Doe",
		Iterations:      2,
		TotalFacts:      2,
		AvgConfidence:   0.7,
		TotalRisks:      4,
		CriticalRisks:   2,
		HighRisks:       1,
		Connections:     1,
		QueriesExecuted: 3,
	}, Summarize(r))
}

func TestRisksBySeverity(t *testing.T) {
	risks := []model.RiskFlag{
		{Description: "odd", Severity: "unclear"},
		{Description: "low", Severity: model.SeverityLow},
		{Description: "crit", Severity: model.SeverityCritical},
		{Description: "high-1", Severity: model.SeverityHigh},
		{Description: "high-2", Severity: model.SeverityHigh},
	}
	sorted := RisksBySeverity(risks)

	var order []string
	for _, r := range sorted {
		order = append(order, r.Description)
	}
	assert.Equal(t, []string{"crit", "high-1", "high-2", "low", "odd"}, order)
	assert.Equal(t, "odd", risks[0].Description, "input is not reordered")
	assert.NotNil(t, RisksBySeverity(nil))
}

func TestExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r := sampleResult(t)

	md, data, err := Export(r, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Jane_Doe_report.md"), md)
	assert.Equal(t, filepath.Join(dir, "Jane_Doe_data.json"), data)

	raw, err := os.ReadFile(data)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "Jane Doe", decoded["target"])
	assert.Len(t, decoded["facts"], 2)
	assert.Contains(t, decoded, "confidence_stats")

	r.FinalReport = ""
	md, _, err = Export(r, dir)
	require.NoError(t, err)
	body, err := os.ReadFile(md)
	require.NoError(t, err)
	assert.Equal(t, NoReport, string(body))
}

func TestReportAccessors(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, &fakeRunner{}, nil)
	job, err := s.Research(ctx, "Jane Doe", "")
	require.NoError(t, err)

	report, err := s.Report(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "# Deep Research Report: Jane Doe", report)

	sum, err := s.Summary(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.CriticalRisks)

	risks, err := s.Risks(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SeverityCritical, risks[0].Severity)
}
