package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/ppiankov/dossier/internal/model"
	"github.com/ppiankov/dossier/internal/score"
)

// NoReport stands in for a missing report body
const NoReport = "No report generated."

// Summary condenses a result into headline numbers
type Summary struct {
	Target          string  `json:"target"`
	Iterations      int     `json:"iterations"`
	TotalFacts      int     `json:"total_facts"`
	AvgConfidence   float64 `json:"avg_confidence"`
	TotalRisks      int     `json:"total_risks"`
	CriticalRisks   int     `json:"critical_risks"`
	HighRisks       int     `json:"high_risks"`
	Connections     int     `json:"connections"`
	QueriesExecuted int     `json:"queries_executed"`
}

// Summarize builds the headline summary of r
func Summarize(r *Result) Summary {
	s := Summary{
		Target:          r.TargetName,
		Iterations:      r.Iterations,
		TotalFacts:      r.ConfidenceStats.TotalFacts,
		AvgConfidence:   r.ConfidenceStats.AvgConfidence,
		TotalRisks:      len(r.RiskFlags),
		Connections:     len(r.Connections),
		QueriesExecuted: r.QueriesExecuted,
	}
	for _, risk := range r.RiskFlags {
		switch risk.Severity {
		case model.SeverityCritical:
			s.CriticalRisks++
		case model.SeverityHigh:
			s.HighRisks++
		}
	}
	return s
}

// RisksBySeverity returns a copy of risks ordered critical first;
// unknown severities sort last and ties keep their order
func RisksBySeverity(risks []model.RiskFlag) []model.RiskFlag {
	out := slices.Clone(risks)
	if out == nil {
		out = []model.RiskFlag{}
	}
	slices.SortStableFunc(out, func(a, b model.RiskFlag) int {
		return a.Severity.Rank() - b.Severity.Rank()
	})
	return out
}

// ReportText is the markdown report, or NoReport
func ReportText(r *Result) string {
	if r.FinalReport == "" {
		return NoReport
	}
	return r.FinalReport
}

type exportData struct {
	Target          string             `json:"target"`
	Facts           []model.Fact       `json:"facts"`
	RiskFlags       []model.RiskFlag   `json:"risk_flags"`
	Connections     []model.Connection `json:"connections"`
	ConfidenceStats score.Stats        `json:"confidence_stats"`
}

// Export writes <target>_report.md and <target>_data.json into dir
func Export(r *Result, dir string) (mdPath, jsonPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create export dir: %w", err)
	}

	name := r.TargetName
	if name == "" {
		name = "unknown"
	}
	name = fileNameReplacer.Replace(name)

	mdPath = filepath.Join(dir, name+"_report.md")
	if err := os.WriteFile(mdPath, []byte(ReportText(r)), 0o644); err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}

	raw, err := json.MarshalIndent(exportData{
		Target:          r.TargetName,
		Facts:           r.Facts,
		RiskFlags:       r.RiskFlags,
		Connections:     r.Connections,
		ConfidenceStats: r.ConfidenceStats,
	}, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("encode export: %w", err)
	}
	jsonPath = filepath.Join(dir, name+"_data.json")
	if err := os.WriteFile(jsonPath, raw, 0o644); err != nil {
		return "", "", fmt.Errorf("write data: %w", err)
	}
	return mdPath, jsonPath, nil
}

// Report returns the markdown report of a completed job
func (s *Research) Report(ctx context.Context, id string) (string, error) {
	r, err := s.Result(ctx, id)
	if err != nil {
		return "", err
	}
	return ReportText(r), nil
}

// Summary returns the headline summary of a completed job
func (s *Research) Summary(ctx context.Context, id string) (*Summary, error) {
	r, err := s.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := Summarize(r)
	return &sum, nil
}

// Risks returns a completed job's risk flags by severity
func (s *Research) Risks(ctx context.Context, id string) ([]model.RiskFlag, error) {
	r, err := s.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	return RisksBySeverity(r.RiskFlags), nil
}
