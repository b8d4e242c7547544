package llm

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownTask is returned for a task with no route
var ErrUnknownTask = errors.New("unknown task")

// Kind is one of the two fixed provider variants
type Kind string

const (
	KindOpenAI Kind = "openai"
	KindGemini Kind = "gemini"
)

// TaskType identifies the pipeline work a generation call serves
type TaskType string

const (
	TaskPlanning   TaskType = "planning"
	TaskExtraction TaskType = "extraction"
	TaskAnalysis   TaskType = "analysis"
	TaskValidation TaskType = "validation"
	TaskReporting  TaskType = "reporting"
)

var taskRoutes = map[TaskType]Kind{
	TaskPlanning:   KindOpenAI,
	TaskExtraction: KindOpenAI,
	TaskAnalysis:   KindOpenAI,
	TaskValidation: KindOpenAI,
	TaskReporting:  KindGemini,
}

var fallbackOf = map[Kind]Kind{
	KindOpenAI: KindGemini,
	KindGemini: KindOpenAI,
}

// Route returns the primary and fallback provider for a task
func Route(task TaskType) (primary, fallback Kind, err error) {
	primary, ok := taskRoutes[task]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}
	return primary, fallbackOf[primary], nil
}

// Settings are the per-call generation parameters that select a client instance
type Settings struct {
	Temperature float32
	JSONMode    bool
}

// Factory builds a provider for a variant and settings
type Factory func(kind Kind, s Settings) (Provider, error)

type providerKey struct {
	kind     Kind
	settings Settings
}

// Router hands out providers, building each (kind, settings) combination once.
// It is safe for concurrent use across jobs.
type Router struct {
	factory Factory

	mu        sync.RWMutex
	providers map[providerKey]Provider
}

// NewRouter creates a router over a provider factory
func NewRouter(factory Factory) *Router {
	return &Router{
		factory:   factory,
		providers: make(map[providerKey]Provider),
	}
}

// Provider returns the cached provider for kind and settings, creating it on first use
func (r *Router) Provider(kind Kind, s Settings) (Provider, error) {
	key := providerKey{kind: kind, settings: s}

	r.mu.RLock()
	p, exists := r.providers[key]
	r.mu.RUnlock()
	if exists {
		return p, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if p, exists := r.providers[key]; exists {
		return p, nil
	}

	p, err := r.factory(kind, s)
	if err != nil {
		return nil, fmt.Errorf("build %s provider: %w", kind, err)
	}
	r.providers[key] = p
	return p, nil
}

// Cached returns the number of distinct provider instances built so far
func (r *Router) Cached() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
