package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ppiankov/dossier/internal/llm"
	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/score"
)

// now is replaced in tests
var now = time.Now

// prompt section caps, in bytes
const (
	reportFactsLimit       = 8000
	reportRisksLimit       = 4000
	reportConnectionsLimit = 3000
	reportQueriesLimit     = 2000
)

// report writes the final report. When generation fails the body lists
// facts and risk flags instead.
func (s *stages) report(ctx context.Context, st *model.ResearchState) (model.Update, error) {
	stats := score.AggregateStats(st.ExtractedFacts)
	avg := score.AverageConfidence(st.ExtractedFacts)

	queries := make([]string, len(st.SearchHistory))
	for i, sr := range st.SearchHistory {
		queries[i] = sr.Query
	}

	prompt := reporterPrompt(reportInputs{
		Target:          st.TargetName,
		Context:         st.TargetContext,
		Iterations:      st.Iteration,
		FactCount:       len(st.ExtractedFacts),
		Facts:           clip(mustJSON(st.ExtractedFacts), reportFactsLimit),
		RiskCount:       len(st.RiskFlags),
		Risks:           clip(mustJSON(st.RiskFlags), reportRisksLimit),
		ConnectionCount: len(st.Connections),
		Connections:     clip(mustJSON(st.Connections), reportConnectionsLimit),
		AvgConfidence:   avg,
		HighCount:       stats.HighConfidence,
		LowCount:        stats.LowConfidence,
		QueryCount:      len(st.SearchHistory),
		Queries:         clip(mustJSON(queries), reportQueriesLimit),
	})

	msgs := []llm.Message{llm.System(reporterSystemPrompt), llm.User(prompt)}
	var body string
	resp, err := s.LLM.Invoke(ctx, llm.TaskReporting, msgs, llm.Settings{Temperature: 0.3})
	if err == nil {
		body = resp.Text()
	} else {
		s.Logger.Warn("report generation failed, using fallback", slog.Any("error", err))
	}
	if strings.TrimSpace(body) == "" {
		body = fallbackReport(st)
	}

	header := fmt.Sprintf("# Deep Research Report: %s\nGenerated: %s\nIterations: %d | Facts: %d | Risks: %d | Avg Confidence: %.2f\n\n",
		st.TargetName,
		now().UTC().Format(time.RFC3339),
		st.Iteration, len(st.ExtractedFacts), len(st.RiskFlags), avg)

	final := header + body
	s.Logger.Info("report generated", slog.Int("chars", len(final)))
	return model.Update{FinalReport: model.StringPtr(final), Status: model.StatusDone}, nil
}

func fallbackReport(st *model.ResearchState) string {
	lines := []string{"## Fallback Report (generation failed)", "", "### Facts Discovered", ""}
	for _, f := range st.ExtractedFacts {
		lines = append(lines, fmt.Sprintf("- [%s] %s (confidence: %.2f)", f.Category, f.Claim, f.Confidence))
	}
	lines = append(lines, "", "### Risk Flags", "")
	for _, r := range st.RiskFlags {
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", r.Severity, r.RiskCategory, r.Description))
	}
	return strings.Join(lines, "\n")
}

// clip cuts s to at most n bytes without splitting a rune
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
