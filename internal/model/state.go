package model

import (
	"maps"
	"slices"
)

// Status is the pipeline phase recorded on ResearchState
type Status string

const (
	StatusPlanning   Status = "planning"
	StatusSearching  Status = "searching"
	StatusExtracting Status = "extracting"
	StatusAnalyzing  Status = "analyzing"
	StatusValidating Status = "validating"
	StatusReporting  Status = "reporting"
	StatusDone       Status = "done"
)

// DefaultConfidence is assigned to facts that arrive without a score.
// The scorer treats facts still at this value as unscored.
const DefaultConfidence = 0.5

// SearchHit is a single result returned by the search provider
type SearchHit struct {
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
	RawContent string  `json:"raw_content,omitempty"`
}

// SearchResult records one executed query and its hits
type SearchResult struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// Fact is a single extracted claim with provenance.
// Two facts are the same fact iff their Claim strings are identical.
type Fact struct {
	Category      string   `json:"category"`
	Claim         string   `json:"claim"`
	SourceURL     string   `json:"source_url"`
	SourceTitle   string   `json:"source_title"`
	DateMentioned *string  `json:"date_mentioned,omitempty"`
	Entities      []string `json:"entities"`
	Confidence    float64  `json:"confidence"`
}

// Severity grades a risk flag
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities from most to least severe; unknown values sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// RiskFlag is a risk pattern identified by the analyzer
type RiskFlag struct {
	RiskCategory    string   `json:"risk_category"`
	Severity        Severity `json:"severity"`
	Description     string   `json:"description"`
	SupportingFacts []int    `json:"supporting_facts"`
	Recommendations []string `json:"recommendations"`
}

// Connection is a directed relationship between two entities
type Connection struct {
	SourceEntity string  `json:"source_entity"`
	TargetEntity string  `json:"target_entity"`
	Relationship string  `json:"relationship"`
	Description  string  `json:"description"`
	Confidence   float64 `json:"confidence"`
}

// ResearchState is the record threaded through the pipeline.
// It is owned by a single pipeline run and only changes through Apply.
type ResearchState struct {
	TargetName    string `json:"target_name"`
	TargetContext string `json:"target_context"`

	ResearchPlan     []string           `json:"research_plan"`
	SearchHistory    []SearchResult     `json:"search_history"`
	ExtractedFacts   []Fact             `json:"extracted_facts"`
	Connections      []Connection       `json:"connections"`
	RiskFlags        []RiskFlag         `json:"risk_flags"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`

	Iteration   int     `json:"iteration"`
	Status      Status  `json:"status"`
	FinalReport *string `json:"final_report,omitempty"`
}

// NewResearchState creates the iteration-0 state for a job
func NewResearchState(targetName, targetContext string) *ResearchState {
	return &ResearchState{
		TargetName:       targetName,
		TargetContext:    targetContext,
		ResearchPlan:     []string{},
		SearchHistory:    []SearchResult{},
		ExtractedFacts:   []Fact{},
		Connections:      []Connection{},
		RiskFlags:        []RiskFlag{},
		ConfidenceScores: map[string]float64{},
		Iteration:        0,
		Status:           StatusPlanning,
	}
}

// Clone returns a copy that shares no mutable backing storage with s.
// Stages receive clones so concurrent branches read a stable snapshot.
func (s *ResearchState) Clone() *ResearchState {
	c := *s
	c.ResearchPlan = slices.Clone(s.ResearchPlan)
	c.SearchHistory = slices.Clone(s.SearchHistory)
	c.ExtractedFacts = slices.Clone(s.ExtractedFacts)
	for i := range c.ExtractedFacts {
		c.ExtractedFacts[i].Entities = slices.Clone(c.ExtractedFacts[i].Entities)
	}
	c.Connections = slices.Clone(s.Connections)
	c.RiskFlags = slices.Clone(s.RiskFlags)
	c.ConfidenceScores = maps.Clone(s.ConfidenceScores)
	if c.ConfidenceScores == nil {
		c.ConfidenceScores = map[string]float64{}
	}
	if s.FinalReport != nil {
		r := *s.FinalReport
		c.FinalReport = &r
	}
	return &c
}

// ExecutedQueries returns the set of queries already present in SearchHistory
func (s *ResearchState) ExecutedQueries() map[string]bool {
	seen := make(map[string]bool, len(s.SearchHistory))
	for _, sr := range s.SearchHistory {
		seen[sr.Query] = true
	}
	return seen
}

// Claims returns the set of claim texts in ExtractedFacts
func (s *ResearchState) Claims() map[string]bool {
	claims := make(map[string]bool, len(s.ExtractedFacts))
	for _, f := range s.ExtractedFacts {
		claims[f.Claim] = true
	}
	return claims
}

// Report returns the final report text, or "" if none was produced
func (s *ResearchState) Report() string {
	if s.FinalReport == nil {
		return ""
	}
	return *s.FinalReport
}
