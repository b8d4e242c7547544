package workflow

import (
	"fmt"
	"slices"

	"github.com/ppiankov/dossier/internal/model"
)

// StageID names a node in the stage graph
type StageID string

const (
	StagePlanner   StageID = "planner"
	StageSearcher  StageID = "searcher"
	StageExtractor StageID = "extractor"
	StageAnalyzer  StageID = "analyzer"
	StageScorer    StageID = "scorer"
	StageValidator StageID = "validator"
	StageReporter  StageID = "reporter"

	// End is the terminal pseudo-stage
	End StageID = "__end__"
)

// Edge is a static, unconditional transition
type Edge struct {
	From StageID
	To   StageID
}

// Router picks the successor of a conditional stage from the merged state
type Router func(state *model.ResearchState) StageID

// Graph is a fixed directed graph of stages.
// A stage with more than one static in-edge is a join: it runs once
// every predecessor has delivered.
type Graph struct {
	entry       StageID
	edges       []Edge
	conditional map[StageID]Router
	targets     map[StageID][]StageID
}

// NewGraph validates and builds a graph.
// A stage may have static out-edges or a conditional route, not both.
func NewGraph(entry StageID, edges []Edge, conditional map[StageID]Router, targets map[StageID][]StageID) (*Graph, error) {
	for from := range conditional {
		for _, e := range edges {
			if e.From == from {
				return nil, fmt.Errorf("stage %s has both static and conditional edges", from)
			}
		}
	}
	return &Graph{entry: entry, edges: edges, conditional: conditional, targets: targets}, nil
}

// ResearchGraph is the research loop:
// planner, searcher, extractor, then analyzer and scorer in parallel,
// joined at validator, which routes back to planner or on to reporter.
func ResearchGraph() *Graph {
	g, err := NewGraph(StagePlanner,
		[]Edge{
			{StagePlanner, StageSearcher},
			{StageSearcher, StageExtractor},
			{StageExtractor, StageAnalyzer},
			{StageExtractor, StageScorer},
			{StageAnalyzer, StageValidator},
			{StageScorer, StageValidator},
			{StageReporter, End},
		},
		map[StageID]Router{StageValidator: RouteAfterValidation},
		map[StageID][]StageID{StageValidator: {StagePlanner, StageReporter}},
	)
	if err != nil {
		panic(err)
	}
	return g
}

// RouteAfterValidation goes to the reporter once the validator has
// set status to reporting, otherwise loops back to the planner
func RouteAfterValidation(state *model.ResearchState) StageID {
	if state.Status == model.StatusReporting {
		return StageReporter
	}
	return StagePlanner
}

// Entry returns the first stage
func (g *Graph) Entry() StageID { return g.entry }

// Next returns the successors of from given the merged state
func (g *Graph) Next(from StageID, state *model.ResearchState) []StageID {
	if route, ok := g.conditional[from]; ok {
		return []StageID{route(state)}
	}
	var next []StageID
	for _, e := range g.edges {
		if e.From == from {
			next = append(next, e.To)
		}
	}
	return next
}

// JoinSize is the number of deliveries a stage waits for before it runs
func (g *Graph) JoinSize(id StageID) int {
	n := 0
	for _, e := range g.edges {
		if e.To == id {
			n++
		}
	}
	return max(n, 1)
}

// Stages lists every stage reachable in the graph, End excluded
func (g *Graph) Stages() []StageID {
	var ids []StageID
	add := func(id StageID) {
		if id != End && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	add(g.entry)
	for _, e := range g.edges {
		add(e.From)
		add(e.To)
	}
	for from, tos := range g.targets {
		add(from)
		for _, to := range tos {
			add(to)
		}
	}
	return ids
}
