package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/dossier/internal/score"
	"github.com/ppiankov/dossier/internal/worker"
)

// ResultsFile is written into the output directory by RunAll
const ResultsFile = "evaluation_results.json"

// Persona is a research subject with known ground truth
type Persona struct {
	Name          string         `yaml:"name"`
	Context       string         `yaml:"context"`
	Difficulty    string         `yaml:"difficulty"`
	ExpectedFacts []ExpectedFact `yaml:"expected_facts"`
	ExpectedRisks []string       `yaml:"expected_risks"`
}

// ExpectedFact is one claim the research should find
type ExpectedFact struct {
	Claim      string `yaml:"claim"`
	Difficulty string `yaml:"difficulty"`
}

// Metrics groups the scores of one evaluation
type Metrics struct {
	FactRecall FactRecall     `json:"fact_recall"`
	Precision  Precision      `json:"precision"`
	F1         float64        `json:"f1_score"`
	Risks      RiskEvaluation `json:"risk_evaluation"`
}

// Evaluation is the outcome of researching one persona
type Evaluation struct {
	Persona         string      `json:"persona"`
	Difficulty      string      `json:"difficulty"`
	Timestamp       time.Time   `json:"timestamp"`
	Metrics         Metrics     `json:"metrics"`
	Stats           score.Stats `json:"stats"`
	Iterations      int         `json:"iterations"`
	QueriesExecuted int         `json:"queries_executed"`
	Error           string      `json:"error,omitempty"`
}

// LoadPersona reads one persona file
func LoadPersona(path string) (*Persona, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}
	var p Persona
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse persona %s: %w", path, err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("persona %s has no name", path)
	}
	if p.Difficulty == "" {
		p.Difficulty = "unknown"
	}
	return &p, nil
}

// LoadPersonas reads every persona_*.yaml in dir, in file name order
func LoadPersonas(dir string) ([]*Persona, error) {
	var paths []string
	for _, pattern := range []string{"persona_*.yaml", "persona_*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, matches...)
	}
	slices.Sort(paths)

	personas := make([]*Persona, 0, len(paths))
	for _, path := range paths {
		p, err := LoadPersona(path)
		if err != nil {
			return nil, err
		}
		personas = append(personas, p)
	}
	return personas, nil
}

// Evaluator researches personas and scores the results
type Evaluator struct {
	researcher  worker.Researcher
	outDir      string
	concurrency int
	threshold   float64
	logger      *slog.Logger
	now         func() time.Time
}

// NewEvaluator creates an evaluator writing results to outDir
func NewEvaluator(researcher worker.Researcher, outDir string, concurrency int, logger *slog.Logger) *Evaluator {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		researcher:  researcher,
		outDir:      outDir,
		concurrency: concurrency,
		threshold:   DefaultMatchThreshold,
		logger:      logger,
		now:         time.Now,
	}
}

// Evaluate researches p and scores the outcome. A failed research run is
// reported in Evaluation.Error rather than returned.
func (e *Evaluator) Evaluate(ctx context.Context, p *Persona) *Evaluation {
	e.logger.Info("evaluating persona", slog.String("persona", p.Name))

	ev := &Evaluation{Persona: p.Name, Difficulty: p.Difficulty, Timestamp: e.now().UTC()}
	job, err := e.researcher.Research(ctx, p.Name, p.Context)
	if err != nil {
		ev.Error = err.Error()
		e.logger.Error("persona research failed", slog.String("persona", p.Name), slog.Any("error", err))
		return ev
	}
	if job == nil || job.Result == nil {
		ev.Error = "research produced no result"
		return ev
	}

	st := job.Result
	expected := make([]string, len(p.ExpectedFacts))
	for i, f := range p.ExpectedFacts {
		expected[i] = f.Claim
	}

	recall := ComputeFactRecall(expected, st.ExtractedFacts, e.threshold)
	precision := ComputePrecision(st.ExtractedFacts)
	ev.Metrics = Metrics{
		FactRecall: recall,
		Precision:  precision,
		F1:         ComputeF1(recall.Recall, precision.EstimatedPrecision),
		Risks:      EvaluateRisks(p.ExpectedRisks, st.RiskFlags),
	}
	ev.Stats = score.AggregateStats(st.ExtractedFacts)
	ev.Iterations = st.Iteration
	ev.QueriesExecuted = len(st.SearchHistory)

	e.logger.Info("persona evaluated",
		slog.String("persona", p.Name),
		slog.Float64("recall", recall.Recall),
		slog.Float64("precision", precision.EstimatedPrecision),
		slog.Float64("f1", ev.Metrics.F1))
	return ev
}

// RunAll evaluates personas concurrently and writes ResultsFile.
// Results keep the order of personas.
func (e *Evaluator) RunAll(ctx context.Context, personas []*Persona) ([]*Evaluation, error) {
	results := make([]*Evaluation, len(personas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, p := range personas {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.Evaluate(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := e.save(results); err != nil {
		return results, err
	}
	return results, nil
}

func (e *Evaluator) save(results []*Evaluation) error {
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	raw, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	path := filepath.Join(e.outDir, ResultsFile)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	e.logger.Info("evaluation results saved", slog.String("path", path))
	return nil
}
