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

// DefaultRelationship labels connections generated without a type
const DefaultRelationship = "ASSOCIATED_WITH"

// analyze looks for new risk flags and entity connections across all facts
func (s *stages) analyze(ctx context.Context, st *model.ResearchState) (model.Update, error) {
	type factView struct {
		Index      int      `json:"index"`
		Category   string   `json:"category"`
		Claim      string   `json:"claim"`
		SourceURL  string   `json:"source_url"`
		Entities   []string `json:"entities"`
		Confidence float64  `json:"confidence"`
	}
	facts := make([]factView, len(st.ExtractedFacts))
	for i, f := range st.ExtractedFacts {
		facts[i] = factView{i, f.Category, f.Claim, f.SourceURL, f.Entities, f.Confidence}
	}

	type riskView struct {
		Category    string `json:"category"`
		Description string `json:"description"`
	}
	existing := "[]"
	if len(st.RiskFlags) > 0 {
		risks := make([]riskView, len(st.RiskFlags))
		for i, r := range st.RiskFlags {
			risks[i] = riskView{r.RiskCategory, r.Description}
		}
		existing = mustJSON(risks)
	}

	msgs := []llm.Message{
		llm.System(analysisSystemPrompt),
		llm.User(analysisPrompt(st.TargetName, st.TargetContext, len(facts), mustJSON(facts), existing)),
	}

	out := model.Update{Status: model.StatusValidating}
	v, ok := s.LLM.InvokeStructured(ctx, llm.TaskAnalysis, msgs, llm.Settings{Temperature: 0.1, JSONMode: true}, "analyzer.analysis")
	if !ok {
		return out, nil
	}
	analysis, ok := recovery.AsMap(v)
	if !ok {
		s.Logger.Warn("analysis was not an object, ignoring it")
		return out, nil
	}

	if list, ok := analysis["risk_flags"].([]any); ok {
		for _, raw := range list {
			if r, ok := decodeRisk(raw); ok {
				out.RiskFlags = append(out.RiskFlags, r)
			}
		}
	}
	if list, ok := analysis["connections"].([]any); ok {
		for _, raw := range list {
			if c, ok := decodeConnection(raw); ok {
				out.Connections = append(out.Connections, c)
			}
		}
	}

	s.Logger.Info("analysis complete",
		slog.Int("new_risks", len(out.RiskFlags)),
		slog.Int("connections", len(out.Connections)))
	return out, nil
}

func decodeRisk(raw any) (model.RiskFlag, bool) {
	m, ok := recovery.AsMap(raw)
	if !ok {
		return model.RiskFlag{}, false
	}
	r := model.RiskFlag{
		RiskCategory:    stringField(m, "risk_category"),
		Severity:        model.Severity(strings.ToLower(strings.TrimSpace(stringField(m, "severity")))),
		Description:     stringField(m, "description"),
		SupportingFacts: []int{},
		Recommendations: []string{},
	}
	if list, ok := m["supporting_facts"].([]any); ok {
		for _, idx := range list {
			if n, ok := asIndex(idx); ok {
				r.SupportingFacts = append(r.SupportingFacts, n)
			}
		}
	}
	switch rec := m["recommendations"].(type) {
	case string:
		if rec != "" {
			r.Recommendations = append(r.Recommendations, rec)
		}
	case []any:
		for _, item := range rec {
			if item == nil {
				continue
			}
			if text := strings.TrimSpace(fmt.Sprint(item)); text != "" {
				r.Recommendations = append(r.Recommendations, text)
			}
		}
	}
	return r, true
}

// decodeConnection accepts source_entity/target_entity/relationship and
// their from/to/type aliases
func decodeConnection(raw any) (model.Connection, bool) {
	m, ok := recovery.AsMap(raw)
	if !ok {
		return model.Connection{}, false
	}
	c := model.Connection{
		SourceEntity: firstString(m, "source_entity", "from"),
		TargetEntity: firstString(m, "target_entity", "to"),
		Relationship: firstString(m, "relationship", "type"),
		Description:  stringField(m, "description"),
		Confidence:   model.DefaultConfidence,
	}
	if c.Relationship == "" {
		c.Relationship = DefaultRelationship
	}
	if v, ok := m["confidence"].(float64); ok {
		c.Confidence = clampConfidence(v)
	}
	return c, true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if _, present := m[k]; present {
			return stringField(m, k)
		}
	}
	return ""
}

// asIndex converts a decoded JSON number to a non-negative int
// clampConfidence keeps generated confidences within [0,1]
func clampConfidence(c float64) float64 {
	return min(1, max(0, c))
}

func asIndex(v any) (int, bool) {
	f, ok := v.(float64)
	if !ok || f < 0 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
