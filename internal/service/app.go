package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ppiankov/dossier/internal/cache"
	"github.com/ppiankov/dossier/internal/identity"
	"github.com/ppiankov/dossier/internal/jobs"
	"github.com/ppiankov/dossier/internal/llm"
	"github.com/ppiankov/dossier/internal/metrics"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/search"
	"github.com/ppiankov/dossier/internal/workflow"
)

// App is the fully wired research service and the resources it owns
type App struct {
	Research *Research
	Metrics  *metrics.Metrics

	jobs  jobs.Store
	graph identity.Backend
}

// NewApp wires every component from cfg
func NewApp(cfg model.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := metrics.New()

	inv := llm.NewInvoker(
		llm.NewRouter(llm.ConfigFactory(cfg.LLM, cfg.Proxy)),
		llm.WithLogger(logger),
		llm.WithMetrics(m),
		llm.WithRequestTimeout(cfg.LLM.RequestTimeout),
	)

	sp, err := search.NewFromConfig(cfg, cache.New(cfg.Cache), logger)
	if err != nil {
		return nil, fmt.Errorf("search provider: %w", err)
	}

	deps := workflow.DepsFromConfig(cfg, inv, sp)
	deps.Logger = logger
	deps.Metrics = m
	engine, err := workflow.NewResearchEngine(deps, cfg.Pipeline.MaxSteps)
	if err != nil {
		return nil, fmt.Errorf("workflow engine: %w", err)
	}

	store, err := jobs.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("job store: %w", err)
	}

	graph := identity.Open(cfg.Graph, logger)

	return &App{
		Research: NewResearch(engine, store, Options{
			ReportsDir: cfg.Output.ReportsDir,
			Graph:      graph,
			Logger:     logger,
			Metrics:    m,
		}),
		Metrics: m,
		jobs:    store,
		graph:   graph,
	}, nil
}

// Close releases the job store and the graph connection
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.jobs.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close job store: %w", err))
	}
	if c, ok := a.graph.(interface{ Close(context.Context) error }); ok {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close graph: %w", err))
		}
	}
	return errors.Join(errs...)
}
