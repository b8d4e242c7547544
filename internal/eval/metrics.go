// Package eval measures research output against personas with known facts and risks.
package eval

import (
	"math"
	"strings"

	"github.com/ppiankov/dossier/internal/model"
)

// Defaults for scoring
const (
	DefaultMatchThreshold = 0.6
	PrecisionConfidence   = 0.7
	minRiskKeywordLen     = 4
)

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "at": true,
	"is": true, "was": true, "for": true, "and": true, "to": true, "with": true,
}

// Match pairs an expected claim with the extracted claim that covered it
type Match struct {
	Expected    string `json:"expected"`
	MatchedWith string `json:"matched_with"`
}

// FactRecall is the share of expected facts that were found
type FactRecall struct {
	Recall        float64  `json:"recall"`
	MatchedCount  int      `json:"matched_count"`
	TotalExpected int      `json:"total_expected"`
	Matched       []Match  `json:"matched"`
	Unmatched     []string `json:"unmatched"`
}

// Precision approximates precision as the share of confident facts
type Precision struct {
	EstimatedPrecision  float64 `json:"estimated_precision"`
	TotalExtracted      int     `json:"total_extracted"`
	HighConfidenceCount int     `json:"high_confidence_count"`
}

// RiskEvaluation is the share of expected risks mentioned by any flag
type RiskEvaluation struct {
	RiskRecall   float64  `json:"risk_recall"`
	MatchedRisks []string `json:"matched_risks"`
	MissedRisks  []string `json:"missed_risks"`
}

// ComputeFactRecall matches each expected claim against the extracted ones
// by keyword overlap; the first extracted claim reaching threshold wins
func ComputeFactRecall(expected []string, extracted []model.Fact, threshold float64) FactRecall {
	r := FactRecall{TotalExpected: len(expected), Matched: []Match{}, Unmatched: []string{}}
	for _, want := range expected {
		found := false
		for _, f := range extracted {
			if FuzzyMatch(want, f.Claim, threshold) {
				r.Matched = append(r.Matched, Match{Expected: want, MatchedWith: f.Claim})
				found = true
				break
			}
		}
		if !found {
			r.Unmatched = append(r.Unmatched, want)
		}
	}
	r.MatchedCount = len(r.Matched)
	if r.TotalExpected > 0 {
		r.Recall = round3(float64(r.MatchedCount) / float64(r.TotalExpected))
	}
	return r
}

// ComputePrecision counts facts at or above PrecisionConfidence
func ComputePrecision(facts []model.Fact) Precision {
	p := Precision{TotalExtracted: len(facts)}
	if len(facts) == 0 {
		return p
	}
	for _, f := range facts {
		if f.Confidence >= PrecisionConfidence {
			p.HighConfidenceCount++
		}
	}
	p.EstimatedPrecision = round3(float64(p.HighConfidenceCount) / float64(len(facts)))
	return p
}

// ComputeF1 is the harmonic mean of recall and precision
func ComputeF1(recall, precision float64) float64 {
	if recall+precision == 0 {
		return 0
	}
	return round3(2 * recall * precision / (recall + precision))
}

// EvaluateRisks counts an expected risk as found when any of its words
// longer than three characters appears in a flag's description or category
func EvaluateRisks(expected []string, flags []model.RiskFlag) RiskEvaluation {
	var b strings.Builder
	for _, f := range flags {
		b.WriteString(strings.ToLower(f.Description))
		b.WriteByte(' ')
		b.WriteString(strings.ToLower(f.RiskCategory))
		b.WriteByte(' ')
	}
	haystack := b.String()

	r := RiskEvaluation{MatchedRisks: []string{}, MissedRisks: []string{}}
	for _, risk := range expected {
		hit := false
		for _, kw := range strings.Fields(strings.ToLower(risk)) {
			if len(kw) >= minRiskKeywordLen && strings.Contains(haystack, kw) {
				hit = true
				break
			}
		}
		if hit {
			r.MatchedRisks = append(r.MatchedRisks, risk)
		} else {
			r.MissedRisks = append(r.MissedRisks, risk)
		}
	}
	if len(expected) > 0 {
		r.RiskRecall = round3(float64(len(r.MatchedRisks)) / float64(len(expected)))
	}
	return r
}

// FuzzyMatch reports whether at least threshold of the expected claim's
// non-stop words appear in the extracted claim
func FuzzyMatch(expected, extracted string, threshold float64) bool {
	want := words(expected)
	have := words(extracted)
	if len(want) == 0 || len(have) == 0 {
		return false
	}
	overlap := 0
	for w := range want {
		if have[w] {
			overlap++
		}
	}
	return float64(overlap)/float64(len(want)) >= threshold
}

func words(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if !stopWords[w] {
			out[w] = true
		}
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
