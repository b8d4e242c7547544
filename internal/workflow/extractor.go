package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ppiankov/dossier/internal/llm"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/recovery"
)

const existingFactsInPrompt = 50

// extract turns this round's search results into new facts with one
// batched generation call. Only history entries for queries in the current
// plan with at least one hit are used; claims already known are dropped.
func (s *stages) extract(ctx context.Context, st *model.ResearchState) (model.Update, error) {
	plan := make(map[string]bool, len(st.ResearchPlan))
	for _, q := range st.ResearchPlan {
		plan[q] = true
	}

	var current []model.SearchResult
	for _, sr := range st.SearchHistory {
		if plan[sr.Query] && len(sr.Results) > 0 {
			current = append(current, sr)
		}
	}

	done := model.Update{Status: model.StatusAnalyzing}
	if len(current) == 0 {
		s.Logger.Info("no new search results to extract from", slog.Int("iteration", st.Iteration))
		return done, nil
	}

	type known struct {
		Claim    string `json:"claim"`
		Category string `json:"category"`
	}
	existing := "[]"
	if len(st.ExtractedFacts) > 0 {
		summary := make([]known, 0, existingFactsInPrompt)
		for i, f := range st.ExtractedFacts {
			if i == existingFactsInPrompt {
				break
			}
			summary = append(summary, known{Claim: f.Claim, Category: f.Category})
		}
		existing = mustJSON(summary)
	}

	msgs := []llm.Message{
		llm.System(extractionSystemPrompt),
		llm.User(extractionPrompt(st.TargetName, formatResults(current), existing)),
	}
	v, ok := s.LLM.InvokeStructured(ctx, llm.TaskExtraction, msgs, llm.Settings{Temperature: 0, JSONMode: true}, "extractor.facts")
	if !ok {
		return done, nil
	}

	claims := st.Claims()
	list, _ := recovery.AsList(v)
	for _, raw := range list {
		fact, ok := decodeFact(raw)
		if !ok || claims[fact.Claim] {
			continue
		}
		claims[fact.Claim] = true
		done.ExtractedFacts = append(done.ExtractedFacts, fact)
	}

	s.Logger.Info("facts extracted",
		slog.Int("new_facts", len(done.ExtractedFacts)),
		slog.Int("searches", len(current)))
	return done, nil
}

// decodeFact accepts a generated fact object; a fact needs a non-empty claim
// and takes the default confidence when none is given
func decodeFact(raw any) (model.Fact, bool) {
	m, ok := recovery.AsMap(raw)
	if !ok {
		return model.Fact{}, false
	}
	claim, _ := m["claim"].(string)
	if claim == "" {
		return model.Fact{}, false
	}

	f := model.Fact{
		Category:    stringField(m, "category"),
		Claim:       claim,
		SourceURL:   stringField(m, "source_url"),
		SourceTitle: stringField(m, "source_title"),
		Entities:    []string{},
		Confidence:  model.DefaultConfidence,
	}
	if d, ok := m["date_mentioned"].(string); ok && d != "" {
		f.DateMentioned = &d
	}
	if list, ok := m["entities"].([]any); ok {
		for _, e := range list {
			if name, ok := e.(string); ok && name != "" {
				f.Entities = append(f.Entities, name)
			}
		}
	}
	if c, ok := m["confidence"].(float64); ok {
		f.Confidence = clampConfidence(c)
	}
	return f, true
}

func formatResults(searches []model.SearchResult) string {
	sections := make([]string, 0, len(searches))
	for _, sr := range searches {
		var b strings.Builder
		fmt.Fprintf(&b, "=== Query: %s ===\n", sr.Query)
		for _, h := range sr.Results {
			fmt.Fprintf(&b, "Title: %s\nURL: %s\nContent: %s\n---\n", orNA(h.Title), orNA(h.URL), orNA(h.Content))
		}
		sections = append(sections, b.String())
	}
	return strings.Join(sections, "\n")
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
