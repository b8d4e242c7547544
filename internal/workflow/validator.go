package workflow

import (
	"context"
	"log/slog"

	"github.com/ppiankov/dossier/internal/llm"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/recovery"
	"github.com/ppiankov/dossier/internal/score"
)

// validate is the join point after analysis and scoring. It patches scored
// confidences onto facts, asks whether research is sufficient, increments
// the iteration and picks the next status. The iteration cap always wins.
func (s *stages) validate(ctx context.Context, st *model.ResearchState) (model.Update, error) {
	patch := make(map[string]float64)
	facts := make([]model.Fact, len(st.ExtractedFacts))
	copy(facts, st.ExtractedFacts)
	for i := range facts {
		if v, ok := st.ConfidenceScores[facts[i].Claim]; ok {
			facts[i].Confidence = v
			patch[facts[i].Claim] = v
		}
	}
	s.Logger.Info("sufficiency check",
		slog.Int("facts", len(facts)),
		slog.Int("scores", len(st.ConfidenceScores)))

	proceed := s.sufficient(ctx, st, facts)

	next := st.Iteration + 1
	status := model.StatusReporting
	if proceed && next < s.MaxIterations {
		status = model.StatusPlanning
	}

	s.Logger.Info("sufficiency decided",
		slog.Bool("continue", proceed),
		slog.String("next_status", string(status)),
		slog.Int("iteration", next))

	out := model.Update{Iteration: model.IntPtr(next), Status: status}
	if len(patch) > 0 {
		out.FactConfidence = patch
	}
	return out, nil
}

// sufficient reports whether another round is wanted. Without a usable
// answer it keeps going only for the first two rounds.
func (s *stages) sufficient(ctx context.Context, st *model.ResearchState, facts []model.Fact) bool {
	prompt := sufficiencyPrompt(st.TargetName, st.Iteration, s.MaxIterations,
		len(facts), len(st.RiskFlags),
		score.AverageConfidence(facts),
		mustJSON(score.Categories(facts)),
		s.ConfidenceThreshold)

	v, ok := s.LLM.InvokeStructured(ctx, llm.TaskValidation, []llm.Message{llm.User(prompt)},
		llm.Settings{Temperature: 0, JSONMode: true}, "validator.sufficiency")
	if ok {
		if m, isMap := recovery.AsMap(v); isMap {
			proceed, _ := m["continue"].(bool)
			return proceed
		}
	}
	return st.Iteration < 2
}
