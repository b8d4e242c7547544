package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/dossier/internal/metrics"
	"github.com/ppiankov/dossier/internal/model"
)

var tracer = otel.Tracer("dossier.workflow")

var (
	// ErrStepLimit is returned when a run launches more stages than allowed
	ErrStepLimit = errors.New("pipeline step limit exceeded")
	// ErrUnknownStage is returned when the graph names a stage with no implementation
	ErrUnknownStage = errors.New("unknown stage")
	// ErrStalled is returned when no stage is running and End was never reached
	ErrStalled = errors.New("pipeline stalled before reaching the end")
)

// DefaultMaxSteps bounds stage launches per run
const DefaultMaxSteps = 200

// Stage is one unit of pipeline work. It receives a private snapshot of
// the state and returns a partial update; it must not retain the snapshot.
type Stage interface {
	Run(ctx context.Context, state *model.ResearchState) (model.Update, error)
}

// StageFunc adapts a function to Stage
type StageFunc func(ctx context.Context, state *model.ResearchState) (model.Update, error)

// Run calls f
func (f StageFunc) Run(ctx context.Context, state *model.ResearchState) (model.Update, error) {
	return f(ctx, state)
}

// Engine interprets a Graph. A single goroutine owns the state; stages run
// on their own goroutines against clones and their updates are merged in
// arrival order.
type Engine struct {
	graph    *Graph
	stages   map[StageID]Stage
	logger   *slog.Logger
	metrics  *metrics.Metrics
	maxSteps int
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records stage durations
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithMaxSteps overrides DefaultMaxSteps
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewEngine binds stage implementations to a graph
func NewEngine(g *Graph, stages map[StageID]Stage, opts ...Option) (*Engine, error) {
	for _, id := range g.Stages() {
		if _, ok := stages[id]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStage, id)
		}
	}
	e := &Engine{
		graph:    g,
		stages:   stages,
		logger:   slog.Default(),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type stageResult struct {
	id       StageID
	update   model.Update
	err      error
	duration time.Duration
}

// Run executes the graph from its entry stage until End and returns the
// final state. The initial state is not modified. On error no state is returned.
func (e *Engine) Run(ctx context.Context, initial *model.ResearchState) (*model.ResearchState, error) {
	ctx, span := tracer.Start(ctx, "workflow.Run",
		trace.WithAttributes(attribute.String("target", initial.TargetName)),
	)
	defer span.End()

	state := initial.Clone()
	results := make(chan stageResult, len(e.stages))
	arrivals := make(map[StageID]int)
	inflight, steps := 0, 0
	finished := false
	var runErr error

	launch := func(id StageID) {
		if runErr != nil {
			return
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			return
		}
		steps++
		if steps > e.maxSteps {
			runErr = fmt.Errorf("%w: %d", ErrStepLimit, e.maxSteps)
			return
		}
		inflight++
		go e.runStage(ctx, id, state.Clone(), results)
	}

	launch(e.graph.Entry())

	for inflight > 0 {
		r := <-results
		inflight--

		if runErr != nil {
			continue
		}
		if r.err != nil {
			runErr = fmt.Errorf("stage %s: %w", r.id, r.err)
			continue
		}
		if err := state.Apply(r.update); err != nil {
			runErr = fmt.Errorf("merge %s: %w", r.id, err)
			continue
		}

		for _, next := range e.graph.Next(r.id, state) {
			if next == End {
				finished = true
				continue
			}
			arrivals[next]++
			if arrivals[next] < e.graph.JoinSize(next) {
				continue
			}
			arrivals[next] = 0
			launch(next)
		}
	}

	if runErr == nil && !finished {
		runErr = ErrStalled
	}
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		e.logger.Error("pipeline failed",
			slog.String("target", state.TargetName),
			slog.Int("iteration", state.Iteration),
			slog.Int("steps", steps),
			slog.Any("error", runErr))
		return nil, runErr
	}

	span.SetStatus(codes.Ok, "")
	span.SetAttributes(attribute.Int("iterations", state.Iteration), attribute.Int("steps", steps))
	e.metrics.ObserveIterations(state.Iteration)
	e.logger.Info("pipeline completed",
		slog.String("target", state.TargetName),
		slog.Int("iterations", state.Iteration),
		slog.Int("steps", steps),
		slog.Int("facts", len(state.ExtractedFacts)))
	return state, nil
}

func (e *Engine) runStage(ctx context.Context, id StageID, snapshot *model.ResearchState, out chan<- stageResult) {
	ctx, span := tracer.Start(ctx, "workflow.stage."+string(id),
		trace.WithAttributes(
			attribute.String("stage", string(id)),
			attribute.Int("iteration", snapshot.Iteration),
		),
	)
	defer span.End()

	start := time.Now()
	e.logger.Debug("stage started", slog.String("stage", string(id)), slog.Int("iteration", snapshot.Iteration))

	r := stageResult{id: id}
	func() {
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("panic: %v", p)
			}
		}()
		r.update, r.err = e.stages[id].Run(ctx, snapshot)
	}()
	r.duration = time.Since(start)

	status := metrics.OutcomeSuccess
	if r.err != nil {
		status = metrics.OutcomeError
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
	}
	e.metrics.ObserveStage(string(id), status, r.duration)
	e.logger.Info("stage finished",
		slog.String("stage", string(id)),
		slog.Int("iteration", snapshot.Iteration),
		slog.Duration("duration", r.duration),
		slog.String("status", status),
		slog.Bool("changed", r.err == nil && !r.update.IsEmpty()))

	out <- r
}
