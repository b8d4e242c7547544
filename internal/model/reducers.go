package model

import (
	"errors"
	"fmt"
)

// ErrIterationRegressed is returned when an update would move the iteration counter backwards
var ErrIterationRegressed = errors.New("iteration counter cannot decrease")

// AppendReduce concatenates delta onto cur. Neither input is mutated.
func AppendReduce[T any](cur, delta []T) []T {
	out := make([]T, 0, len(cur)+len(delta))
	out = append(out, cur...)
	return append(out, delta...)
}

// UnionReduce merges delta over cur, delta winning on key collisions
func UnionReduce[K comparable, V any](cur, delta map[K]V) map[K]V {
	out := make(map[K]V, len(cur)+len(delta))
	for k, v := range cur {
		out[k] = v
	}
	for k, v := range delta {
		out[k] = v
	}
	return out
}

// Update is a partial state produced by one stage.
// Nil or empty fields leave the corresponding state field untouched.
type Update struct {
	ResearchPlan     []string // replace when non-nil
	SearchHistory    []SearchResult
	ExtractedFacts   []Fact
	Connections      []Connection
	RiskFlags        []RiskFlag
	ConfidenceScores map[string]float64

	// FactConfidence patches Fact.Confidence for facts whose claim is a key
	FactConfidence map[string]float64

	Iteration   *int
	Status      Status
	FinalReport *string
}

// IsEmpty reports whether applying u would change nothing
func (u Update) IsEmpty() bool {
	return u.ResearchPlan == nil &&
		len(u.SearchHistory) == 0 &&
		len(u.ExtractedFacts) == 0 &&
		len(u.Connections) == 0 &&
		len(u.RiskFlags) == 0 &&
		len(u.ConfidenceScores) == 0 &&
		len(u.FactConfidence) == 0 &&
		u.Iteration == nil &&
		u.Status == "" &&
		u.FinalReport == nil
}

// IntPtr is a helper for building updates
func IntPtr(v int) *int { return &v }

// StringPtr is a helper for building updates
func StringPtr(v string) *string { return &v }

// Apply merges u into s using each field's reducer.
// Appended fields grow, confidence scores are unioned, scalars are replaced.
// Score entries for claims that are not present in s after merging are dropped.
func (s *ResearchState) Apply(u Update) error {
	if u.Iteration != nil && *u.Iteration < s.Iteration {
		return fmt.Errorf("%w: %d -> %d", ErrIterationRegressed, s.Iteration, *u.Iteration)
	}

	if u.ResearchPlan != nil {
		s.ResearchPlan = append([]string(nil), u.ResearchPlan...)
	}
	if len(u.SearchHistory) > 0 {
		s.SearchHistory = AppendReduce(s.SearchHistory, u.SearchHistory)
	}
	if len(u.ExtractedFacts) > 0 {
		s.ExtractedFacts = AppendReduce(s.ExtractedFacts, u.ExtractedFacts)
	}
	if len(u.Connections) > 0 {
		s.Connections = AppendReduce(s.Connections, u.Connections)
	}
	if len(u.RiskFlags) > 0 {
		s.RiskFlags = AppendReduce(s.RiskFlags, u.RiskFlags)
	}

	if len(u.ConfidenceScores) > 0 || len(u.FactConfidence) > 0 {
		claims := s.Claims()
		if len(u.ConfidenceScores) > 0 {
			scores := make(map[string]float64, len(u.ConfidenceScores))
			for claim, v := range u.ConfidenceScores {
				if claims[claim] {
					scores[claim] = v
				}
			}
			s.ConfidenceScores = UnionReduce(s.ConfidenceScores, scores)
		}
		if len(u.FactConfidence) > 0 {
			for i := range s.ExtractedFacts {
				if v, ok := u.FactConfidence[s.ExtractedFacts[i].Claim]; ok {
					s.ExtractedFacts[i].Confidence = v
				}
			}
		}
	}

	if u.Iteration != nil {
		s.Iteration = *u.Iteration
	}
	if u.Status != "" {
		s.Status = u.Status
	}
	if u.FinalReport != nil {
		r := *u.FinalReport
		s.FinalReport = &r
	}
	return nil
}
