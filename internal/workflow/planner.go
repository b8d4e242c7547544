package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/ppiankov/dossier/internal/llm"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/recovery"
)

const (
	plannerFactLimit   = 30
	plannerEntityLimit = 50
)

// plan replaces the research plan. The first round works from the target
// alone; later rounds also see facts, entities and the query history.
func (s *stages) plan(ctx context.Context, st *model.ResearchState) (model.Update, error) {
	var prompt string
	if st.Iteration == 0 {
		prompt = initialPlannerPrompt(st.TargetName, st.TargetContext)
	} else {
		history := make([]string, 0, len(st.SearchHistory))
		for _, sr := range st.SearchHistory {
			history = append(history, sr.Query)
		}
		prompt = plannerPrompt(st.TargetName, st.TargetContext, st.Iteration,
			mustJSON(history),
			summarizeFacts(st.ExtractedFacts, plannerFactLimit),
			mustJSON(discoveredEntities(st.ExtractedFacts, plannerEntityLimit)))
	}

	msgs := []llm.Message{llm.System(plannerSystemPrompt), llm.User(prompt)}
	queries := []string{}
	resp, err := s.LLM.Invoke(ctx, llm.TaskPlanning, msgs, llm.Settings{Temperature: 0.2, JSONMode: true})
	if err != nil {
		s.Logger.Warn("planner produced no queries", slog.Int("iteration", st.Iteration), slog.Any("error", err))
	} else {
		queries = s.parseQueries(resp)
	}

	s.Logger.Info("research plan ready", slog.Int("iteration", st.Iteration), slog.Int("queries", len(queries)))
	return model.Update{ResearchPlan: queries, Status: model.StatusSearching}, nil
}

// parseQueries accepts a JSON list, a mapping wrapping a list, or
// falls back to one query per non-empty line
func (s *stages) parseQueries(resp *llm.Response) []string {
	queries := []string{}
	if v, ok := s.parse(resp, "planner.queries"); ok {
		if list, ok := recovery.AsList(v); ok {
			for _, q := range list {
				if q == nil {
					continue
				}
				if text := strings.TrimSpace(fmt.Sprint(q)); text != "" {
					queries = append(queries, text)
				}
			}
			return queries
		}
	}

	for _, line := range strings.Split(resp.Text(), "\n") {
		line = strings.Trim(strings.TrimSpace(line), "- ")
		line = strings.Trim(line, `"`)
		if line != "" {
			queries = append(queries, line)
		}
	}
	return queries
}

func summarizeFacts(facts []model.Fact, limit int) string {
	if len(facts) == 0 {
		return "None yet."
	}
	lines := make([]string, 0, min(len(facts), limit))
	for i, f := range facts {
		if i == limit {
			break
		}
		category := f.Category
		if category == "" {
			category = "unknown"
		}
		lines = append(lines, fmt.Sprintf("[%d] (%s): %s", i, category, f.Claim))
	}
	return strings.Join(lines, "\n")
}

// discoveredEntities returns the sorted unique entities, capped at limit
func discoveredEntities(facts []model.Fact, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range facts {
		for _, e := range f.Entities {
			if e != "" && !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	slices.Sort(out)
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []string{}
	}
	return out
}

func mustJSON(v any) string {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(raw)
}
