package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ppiankov/dossier/internal/model"
)

// Target is one research subject from a batch file
type Target struct {
	Name    string
	Context string
}

// Researcher runs a complete research job for one target
type Researcher interface {
	Research(ctx context.Context, targetName, targetContext string) (*model.Job, error)
}

// BatchResult is the outcome for a single target
type BatchResult struct {
	Target Target
	Job    *model.Job
	Err    error
}

// BatchRunner researches many targets concurrently
type BatchRunner struct {
	researcher  Researcher
	concurrency int
	logger      *slog.Logger
}

// NewBatchRunner creates a batch runner
func NewBatchRunner(researcher Researcher, concurrency int, logger *slog.Logger) *BatchRunner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BatchRunner{
		researcher:  researcher,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run researches targets; results keep the input order
func (b *BatchRunner) Run(ctx context.Context, targets []Target) []BatchResult {
	results := Map(ctx, b.concurrency, targets, func(ctx context.Context, t Target) (*model.Job, error) {
		b.logger.Info("batch target started", "target", t.Name)
		job, err := b.researcher.Research(ctx, t.Name, t.Context)
		if err != nil {
			b.logger.Warn("batch target failed", "target", t.Name, "error", err)
		}
		return job, err
	})

	out := make([]BatchResult, len(results))
	for i, r := range results {
		out[i] = BatchResult{Target: targets[i], Job: r.Value, Err: r.Err}
	}
	return out
}

// RunFile reads targets from path and researches them
func (b *BatchRunner) RunFile(ctx context.Context, path string) ([]BatchResult, error) {
	targets, err := ReadTargetsFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return b.Run(ctx, targets), nil
}

// ParseTarget parses "Name | context". Blank lines and # comments yield false.
func ParseTarget(line string) (Target, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Target{}, false
	}

	name, context, _ := strings.Cut(line, "|")
	name = strings.TrimSpace(name)
	if name == "" {
		return Target{}, false
	}
	return Target{Name: name, Context: strings.TrimSpace(context)}, true
}

// ReadTargets parses one target per line, skipping duplicates
func ReadTargets(r io.Reader) ([]Target, error) {
	var targets []Target
	seen := make(map[Target]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		t, ok := ParseTarget(scanner.Text())
		if !ok || seen[t] {
			continue
		}
		seen[t] = true
		targets = append(targets, t)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan targets: %w", err)
	}
	return targets, nil
}

// ReadTargetsFromFile reads a batch file
func ReadTargetsFromFile(path string) ([]Target, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return ReadTargets(file)
}
