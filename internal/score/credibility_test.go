package score

import (
	"testing"

	"github.com/ppiankov/dossier/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestSourceTier(t *testing.T) {
	tests := []struct {
		url  string
		want int
	}{
		{"", 5},
		{"https://sec.gov/cgi-bin/x", 1},
		{"https://www.sec.gov/cgi-bin/browse-edgar?company=x", 1},
		{"https://opencorporates.com/companies/gb/123", 1},
		{"https://www.reuters.com/world/a", 2},
		{"https://ft.com/content/1", 2},
		{"https://techcrunch.com/2024/01/01/x", 3},
		{"https://www.linkedin.com/in/jane", 4},
		{"https://news.google.com/articles/x", 4},
		{"https://www.reddit.com/r/x", 5},
		{"https://unknown-domain.example", 4},
		{"https://www.microsoft.com/about", 4},
		{"reuters.com/article", 2},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceTier(tt.url))
		})
	}
}

func TestCredibilityClassifier_CustomTiers(t *testing.T) {
	c := NewCredibilityClassifier(map[int][]string{
		1: {"companieshouse.gov.uk"},
		3: {"gov.uk"},
	})

	assert.Equal(t, 1, c.Tier("https://find-and-update.companieshouse.gov.uk/company/1"))
	assert.Equal(t, 3, c.Tier("https://www.gov.uk/guidance"))
	assert.Equal(t, 4, c.Tier("https://example.org"))
}

func TestComputeConfidence_NoSources(t *testing.T) {
	assert.Equal(t, 0.3, ComputeConfidence(nil, 1, 1.0))
	assert.Equal(t, 0.3, ComputeConfidence([]string{}, 5, 1.0))
}

func TestComputeConfidence_TierOne(t *testing.T) {
	assert.InDelta(t, 0.95, ComputeConfidence([]string{"https://sec.gov/x"}, 1, 1.0), 1e-9)
}

func TestComputeConfidence_BestTierWins(t *testing.T) {
	got := ComputeConfidence([]string{"https://reddit.com/x", "https://reuters.com/y"}, 1, 1.0)
	assert.InDelta(t, 0.85, got, 1e-9)
}

func TestComputeConfidence_CorroborationMonotonicAndCapped(t *testing.T) {
	bbc := []string{"https://bbc.com/x"}
	one := ComputeConfidence(bbc, 1, 1.0)
	three := ComputeConfidence(bbc, 3, 1.0)
	hundred := ComputeConfidence(bbc, 100, 1.0)

	assert.Less(t, one, three)
	assert.InDelta(t, 0.7, hundred, 1e-9, "bonus capped at 0.15")
	assert.LessOrEqual(t, ComputeConfidence([]string{"https://sec.gov/x"}, 100, 1.0), 1.0)
}

func TestComputeConfidence_RecencyAndClamp(t *testing.T) {
	assert.InDelta(t, 0.76, ComputeConfidence([]string{"https://sec.gov/x"}, 1, 0.8), 1e-9)
	assert.Equal(t, 0.0, ComputeConfidence([]string{"https://sec.gov/x"}, 1, -1))
	assert.Equal(t, 1.0, ComputeConfidence([]string{"https://sec.gov/x"}, 4, 2))
}

func TestAggregateStats_Empty(t *testing.T) {
	s := AggregateStats(nil)
	assert.Equal(t, 0, s.TotalFacts)
	assert.Equal(t, 0.0, s.AvgConfidence)
	assert.Empty(t, s.CategoryBreakdown)
	assert.NotNil(t, s.CategoryBreakdown)
}

func TestAggregateStats_Bands(t *testing.T) {
	facts := []model.Fact{
		{Category: "professional", Confidence: 0.9},
		{Category: "professional", Confidence: 0.7},
		{Category: "financial", Confidence: 0.5},
		{Category: "", Confidence: 0.2},
	}
	s := AggregateStats(facts)

	assert.Equal(t, 4, s.TotalFacts)
	assert.InDelta(t, 0.575, s.AvgConfidence, 1e-9)
	assert.Equal(t, 2, s.HighConfidence)
	assert.Equal(t, 1, s.MediumConfidence)
	assert.Equal(t, 1, s.LowConfidence)
	assert.Equal(t, map[string]int{"professional": 2, "financial": 1, "unknown": 1}, s.CategoryBreakdown)
}
