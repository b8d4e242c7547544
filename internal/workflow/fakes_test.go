package workflow

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ppiankov/dossier/internal/llm"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/recovery"
)

// respondFunc returns generated text for a task, or an error to simulate exhaustion
type respondFunc func(task llm.TaskType, msgs []llm.Message) (string, error)

type fakeLLM struct {
	respond respondFunc

	mu    sync.Mutex
	calls map[string]int
}

func newFakeLLM(respond respondFunc) *fakeLLM {
	return &fakeLLM{respond: respond, calls: make(map[string]int)}
}

// callKey separates the two validation-task callers
func callKey(task llm.TaskType, msgs []llm.Message) string {
	if task == llm.TaskValidation && len(msgs) == 1 {
		return "sufficiency"
	}
	return string(task)
}

func (f *fakeLLM) Invoke(ctx context.Context, task llm.TaskType, msgs []llm.Message, s llm.Settings) (*llm.Response, error) {
	f.mu.Lock()
	f.calls[callKey(task, msgs)]++
	f.mu.Unlock()

	text, err := f.respond(task, msgs)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Parts: []recovery.Part{{Type: recovery.PartText, Text: text}}}, nil
}

func (f *fakeLLM) InvokeStructured(ctx context.Context, task llm.TaskType, msgs []llm.Message, s llm.Settings, label string) (any, bool) {
	resp, err := f.Invoke(ctx, task, msgs, s)
	if err != nil {
		return nil, false
	}
	return recovery.NewParser(quietLogger()).Recover(resp.Parts, label)
}

func (f *fakeLLM) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
	hits    func(query string) ([]model.SearchHit, error)
}

func (f *fakeSearch) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.hits == nil {
		return nil, nil
	}
	return f.hits(query)
}

func (f *fakeSearch) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func userPrompt(msgs []llm.Message) string {
	for _, m := range msgs {
		if m.Role == llm.RoleUser {
			return m.Content
		}
	}
	return ""
}

func hasPrompt(msgs []llm.Message, fragment string) bool {
	return strings.Contains(userPrompt(msgs), fragment)
}

func testDeps(inv Invoker, sp *fakeSearch) Deps {
	return Deps{
		LLM:                 inv,
		Search:              sp,
		MaxIterations:       3,
		ConfidenceThreshold: 0.7,
		MaxResults:          5,
		SearchWorkers:       3,
		Logger:              quietLogger(),
	}
}
