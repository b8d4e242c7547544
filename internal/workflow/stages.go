package workflow

import (
	"context"
	"log/slog"

	"github.com/ppiankov/dossier/internal/llm"
	"github.com/ppiankov/dossier/internal/metrics"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/recovery"
	"github.com/ppiankov/dossier/internal/search"
)

// Invoker is the resilient generation layer as seen by the stages
type Invoker interface {
	Invoke(ctx context.Context, task llm.TaskType, messages []llm.Message, s llm.Settings) (*llm.Response, error)
	InvokeStructured(ctx context.Context, task llm.TaskType, messages []llm.Message, s llm.Settings, label string) (any, bool)
}

// Deps are the collaborators shared by the research stages
type Deps struct {
	LLM    Invoker
	Search search.Provider

	MaxIterations       int
	ConfidenceThreshold float64
	MaxResults          int
	SearchWorkers       int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// DepsFromConfig fills the tunables of Deps from configuration
func DepsFromConfig(cfg model.Config, inv Invoker, sp search.Provider) Deps {
	return Deps{
		LLM:                 inv,
		Search:              sp,
		MaxIterations:       cfg.Pipeline.MaxIterations,
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		MaxResults:          cfg.Search.MaxResults,
		SearchWorkers:       cfg.Search.Workers,
	}
}

type stages struct {
	Deps
	parser *recovery.Parser
}

// ResearchStages binds the seven research stages to deps
func ResearchStages(d Deps) map[StageID]Stage {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.MaxIterations <= 0 {
		d.MaxIterations = 5
	}
	if d.MaxResults <= 0 {
		d.MaxResults = 5
	}
	if d.SearchWorkers <= 0 {
		d.SearchWorkers = 5
	}
	if d.ConfidenceThreshold <= 0 {
		d.ConfidenceThreshold = 0.7
	}

	s := &stages{Deps: d, parser: recovery.NewParser(d.Logger)}
	return map[StageID]Stage{
		StagePlanner:   StageFunc(s.plan),
		StageSearcher:  StageFunc(s.search),
		StageExtractor: StageFunc(s.extract),
		StageAnalyzer:  StageFunc(s.analyze),
		StageScorer:    StageFunc(s.score),
		StageValidator: StageFunc(s.validate),
		StageReporter:  StageFunc(s.report),
	}
}

// parse recovers a structured value from resp, counting failures
func (s *stages) parse(resp *llm.Response, label string) (any, bool) {
	v, ok := s.parser.Recover(resp.Parts, label)
	if !ok {
		s.Metrics.IncRecoveryFailure()
	}
	return v, ok
}

// NewResearchEngine builds the engine for the research graph
func NewResearchEngine(d Deps, maxSteps int) (*Engine, error) {
	return NewEngine(ResearchGraph(), ResearchStages(d),
		WithLogger(d.Logger),
		WithMetrics(d.Metrics),
		WithMaxSteps(maxSteps),
	)
}
