package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ppiankov/dossier/internal/metrics"
	"github.com/ppiankov/dossier/internal/recovery"
)

// ErrExhausted is returned when every attempt of an invocation failed
var ErrExhausted = errors.New("all generation attempts failed")

// MaxAttempts is the total number of provider calls per invocation
const MaxAttempts = 3

// Invoker calls providers with a fixed retry and fallback policy:
// primary, primary again, then the task's fallback provider. No backoff.
type Invoker struct {
	router         *Router
	parser         *recovery.Parser
	logger         *slog.Logger
	metrics        *metrics.Metrics
	requestTimeout time.Duration
}

// InvokerOption customizes an Invoker
type InvokerOption func(*Invoker)

// WithLogger sets the logger for attempt failures
func WithLogger(l *slog.Logger) InvokerOption {
	return func(i *Invoker) {
		if l != nil {
			i.logger = l
		}
	}
}

// WithMetrics records attempt outcomes
func WithMetrics(m *metrics.Metrics) InvokerOption {
	return func(i *Invoker) { i.metrics = m }
}

// WithRequestTimeout bounds each provider call
func WithRequestTimeout(d time.Duration) InvokerOption {
	return func(i *Invoker) { i.requestTimeout = d }
}

// NewInvoker creates an invoker over a router
func NewInvoker(router *Router, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		router: router,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(inv)
	}
	inv.parser = recovery.NewParser(inv.logger)
	return inv
}

type attempt struct {
	kind  Kind
	label string
}

// Invoke runs the task's messages through at most MaxAttempts provider calls.
// The returned error wraps ErrExhausted when every attempt failed.
func (inv *Invoker) Invoke(ctx context.Context, task TaskType, messages []Message, s Settings) (*Response, error) {
	primary, fallback, err := Route(task)
	if err != nil {
		return nil, err
	}

	attempts := []attempt{
		{kind: primary, label: "primary"},
		{kind: primary, label: "primary_retry"},
		{kind: fallback, label: "fallback"},
	}

	var lastErr error
	for n, a := range attempts {
		resp, err := inv.call(ctx, a.kind, messages, s)
		if err == nil {
			inv.metrics.IncInvokeAttempt(string(task), string(a.kind), metrics.OutcomeSuccess)
			if n > 0 {
				inv.logger.Info("generation recovered",
					slog.String("task", string(task)),
					slog.String("provider", string(a.kind)),
					slog.String("attempt", a.label))
			}
			return resp, nil
		}

		lastErr = err
		inv.metrics.IncInvokeAttempt(string(task), string(a.kind), metrics.OutcomeError)
		level := slog.LevelWarn
		if n == len(attempts)-1 {
			level = slog.LevelError
		}
		inv.logger.Log(ctx, level, "generation attempt failed",
			slog.String("task", string(task)),
			slog.String("provider", string(a.kind)),
			slog.Int("attempt", n+1),
			slog.String("stage", a.label),
			slog.Any("error", err))
	}

	inv.metrics.IncInvokeExhausted(string(task))
	return nil, fmt.Errorf("%w: task %s: %v", ErrExhausted, task, lastErr)
}

func (inv *Invoker) call(ctx context.Context, kind Kind, messages []Message, s Settings) (*Response, error) {
	p, err := inv.router.Provider(kind, s)
	if err != nil {
		return nil, err
	}

	if inv.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.requestTimeout)
		defer cancel()
	}
	return p.Generate(ctx, messages)
}

// InvokeStructured invokes and recovers a structured value from the response.
// ok is false when the invocation exhausted its attempts or the output could
// not be parsed; callers treat that as no new data.
func (inv *Invoker) InvokeStructured(ctx context.Context, task TaskType, messages []Message, s Settings, label string) (any, bool) {
	resp, err := inv.Invoke(ctx, task, messages, s)
	if err != nil {
		return nil, false
	}
	v, ok := inv.parser.Recover(resp.Parts, label)
	if !ok {
		inv.metrics.IncRecoveryFailure()
	}
	return v, ok
}
