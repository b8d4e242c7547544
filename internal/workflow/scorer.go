package workflow

import (
	"context"
	"log/slog"

	"github.com/ppiankov/dossier/internal/llm"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/recovery"
	"github.com/ppiankov/dossier/internal/score"
)

const scorerHistoryWindow = 10

// tierConfidence scores a fact from its source tier when the grader
// returned no confidence of its own
func tierConfidence(f model.Fact, corroboration any) float64 {
	var urls []string
	if f.SourceURL != "" {
		urls = []string{f.SourceURL}
	}
	n, ok := asIndex(corroboration)
	if !ok || n < 1 {
		n = 1
	}
	return score.ComputeConfidence(urls, n, 1.0)
}

// score asks for confidence values for facts still at the default
// confidence. Scores are keyed by claim; out-of-range indices are ignored.
func (s *stages) score(ctx context.Context, st *model.ResearchState) (model.Update, error) {
	var unscored []model.Fact
	for _, f := range st.ExtractedFacts {
		if f.Confidence == model.DefaultConfidence {
			unscored = append(unscored, f)
		}
	}
	s.Logger.Info("scoring facts", slog.Int("unscored", len(unscored)), slog.Int("total", len(st.ExtractedFacts)))

	var out model.Update
	if len(unscored) == 0 {
		return out, nil
	}

	type factView struct {
		Index       int    `json:"index"`
		Claim       string `json:"claim"`
		SourceURL   string `json:"source_url"`
		SourceTitle string `json:"source_title"`
		Category    string `json:"category"`
		SourceTier  int    `json:"source_tier"`
	}
	facts := make([]factView, len(unscored))
	for i, f := range unscored {
		facts[i] = factView{i, f.Claim, f.SourceURL, f.SourceTitle, f.Category, score.SourceTier(f.SourceURL)}
	}

	type historyView struct {
		Query       string `json:"query"`
		ResultCount int    `json:"result_count"`
	}
	recent := st.SearchHistory[max(0, len(st.SearchHistory)-scorerHistoryWindow):]
	history := make([]historyView, len(recent))
	for i, sr := range recent {
		history[i] = historyView{sr.Query, len(sr.Results)}
	}

	msgs := []llm.Message{
		llm.System(scoringSystemPrompt),
		llm.User(scoringPrompt(st.TargetName, mustJSON(facts), mustJSON(history))),
	}
	v, ok := s.LLM.InvokeStructured(ctx, llm.TaskValidation, msgs, llm.Settings{Temperature: 0, JSONMode: true}, "scorer.scores")
	if !ok {
		return out, nil
	}

	list, _ := recovery.AsList(v)
	scores := make(map[string]float64)
	for _, raw := range list {
		m, ok := recovery.AsMap(raw)
		if !ok {
			continue
		}
		idx, ok := asIndex(m["fact_index"])
		if !ok || idx >= len(unscored) {
			continue
		}
		if c, ok := m["confidence"].(float64); ok {
			scores[unscored[idx].Claim] = clampConfidence(c)
			continue
		}
		scores[unscored[idx].Claim] = tierConfidence(unscored[idx], m["corroboration_count"])
	}

	s.Logger.Info("facts scored", slog.Int("scored", len(scores)))
	if len(scores) > 0 {
		out.ConfidenceScores = scores
	}
	return out, nil
}
