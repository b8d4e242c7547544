package score

import "github.com/ppiankov/dossier/internal/model"

// Confidence bands
const (
	HighConfidence   = 0.7
	MediumConfidence = 0.5
)

// Stats summarises the confidence distribution over a set of facts
type Stats struct {
	TotalFacts        int            `json:"total_facts"`
	AvgConfidence     float64        `json:"avg_confidence"`
	HighConfidence    int            `json:"high_confidence_count"`
	MediumConfidence  int            `json:"medium_confidence_count"`
	LowConfidence     int            `json:"low_confidence_count"`
	CategoryBreakdown map[string]int `json:"category_breakdown"`
}

// AggregateStats computes confidence statistics. Empty input yields zero values.
func AggregateStats(facts []model.Fact) Stats {
	stats := Stats{CategoryBreakdown: map[string]int{}}
	if len(facts) == 0 {
		return stats
	}

	var sum float64
	for _, f := range facts {
		c := f.Confidence
		sum += c
		switch {
		case c >= HighConfidence:
			stats.HighConfidence++
		case c >= MediumConfidence:
			stats.MediumConfidence++
		default:
			stats.LowConfidence++
		}

		category := f.Category
		if category == "" {
			category = "unknown"
		}
		stats.CategoryBreakdown[category]++
	}

	stats.TotalFacts = len(facts)
	stats.AvgConfidence = round(sum/float64(len(facts)), 3)
	return stats
}

// AverageConfidence is the unrounded mean confidence, 0 for no facts
func AverageConfidence(facts []model.Fact) float64 {
	if len(facts) == 0 {
		return 0
	}
	var sum float64
	for _, f := range facts {
		sum += f.Confidence
	}
	return sum / float64(len(facts))
}

// Categories counts facts per category, "unknown" for blank ones
func Categories(facts []model.Fact) map[string]int {
	return AggregateStats(facts).CategoryBreakdown
}
