package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ppiankov/dossier/internal/model"
)

func facts(claims ...string) []model.Fact {
	out := make([]model.Fact, len(claims))
	for i, c := range claims {
		out[i] = model.Fact{Claim: c, Confidence: model.DefaultConfidence}
	}
	return out
}

func TestFuzzyMatch(t *testing.T) {
	tests := []struct {
		name      string
		expected  string
		extracted string
		threshold float64
		want      bool
	}{
		{"exact", "Jane Doe is CEO of Acme", "Jane Doe is CEO of Acme", 0.6, true},
		{"case and stop words ignored", "The CEO of Acme", "acme ceo", 1.0, true},
		{"half overlap passes at 0.5", "founded acme robotics corp", "founded acme", 0.5, true},
		{"half overlap fails at 0.6", "founded acme robotics corp", "founded acme", 0.6, false},
		{"no overlap", "graduated from MIT", "lives in Berlin", 0.6, false},
		{"empty expected", "", "anything", 0.6, false},
		{"only stop words", "the of a", "the of a", 0.6, false},
		{"empty extracted", "graduated from MIT", "", 0.6, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FuzzyMatch(tt.expected, tt.extracted, tt.threshold))
		})
	}
}

func TestComputeFactRecall(t *testing.T) {
	extracted := facts("Jane Doe is CEO of Acme Corp", "Jane Doe graduated from Stanford")

	all := ComputeFactRecall([]string{"CEO of Acme Corp", "graduated from Stanford"}, extracted, DefaultMatchThreshold)
	assert.Equal(t, 1.0, all.Recall)
	assert.Equal(t, 2, all.MatchedCount)
	assert.Empty(t, all.Unmatched)
	assert.Equal(t, "Jane Doe is CEO of Acme Corp", all.Matched[0].MatchedWith)

	half := ComputeFactRecall([]string{"CEO of Acme Corp", "owns a vineyard in Napa"}, extracted, DefaultMatchThreshold)
	assert.Equal(t, 0.5, half.Recall)
	assert.Equal(t, []string{"owns a vineyard in Napa"}, half.Unmatched)

	none := ComputeFactRecall(nil, extracted, DefaultMatchThreshold)
	assert.Equal(t, 0.0, none.Recall)
	assert.Equal(t, 0, none.TotalExpected)
	assert.NotNil(t, none.Matched)
}

func TestComputePrecision(t *testing.T) {
	high := []model.Fact{{Confidence: 0.9}, {Confidence: 0.7}}
	assert.Equal(t, Precision{EstimatedPrecision: 1.0, TotalExtracted: 2, HighConfidenceCount: 2}, ComputePrecision(high))

	mixed := []model.Fact{{Confidence: 0.9}, {Confidence: 0.3}}
	assert.Equal(t, 0.5, ComputePrecision(mixed).EstimatedPrecision)

	assert.Equal(t, Precision{}, ComputePrecision(nil))
}

func TestComputeF1(t *testing.T) {
	assert.Equal(t, 1.0, ComputeF1(1, 1))
	assert.Equal(t, 0.0, ComputeF1(0, 0))
	assert.Equal(t, 0.667, ComputeF1(0.5, 1))
}

func TestEvaluateRisks(t *testing.T) {
	flags := []model.RiskFlag{
		{RiskCategory: "legal", Description: "Named in a securities lawsuit"},
		{RiskCategory: "financial", Description: "Undisclosed offshore holdings"},
	}
	r := EvaluateRisks([]string{"SEC lawsuit", "offshore accounts", "tax evasion"}, flags)

	assert.Equal(t, []string{"SEC lawsuit", "offshore accounts"}, r.MatchedRisks)
	assert.Equal(t, []string{"tax evasion"}, r.MissedRisks)
	assert.Equal(t, 0.667, r.RiskRecall)

	short := EvaluateRisks([]string{"SEC"}, []model.RiskFlag{{Description: "sec filing"}})
	assert.Equal(t, []string{"SEC"}, short.MissedRisks, "keywords under four characters never match")

	assert.Equal(t, 0.0, EvaluateRisks(nil, flags).RiskRecall)
}
