// Package identity turns research output into a graph of people,
// organisations and source documents.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/ppiankov/dossier/internal/model"
)

// Node labels
const (
	LabelPerson       = "Person"
	LabelOrganization = "Organization"
	LabelDocument     = "Document"
)

// Write is a single idempotent graph statement
type Write interface {
	Cypher() (statement string, params map[string]any)
}

// Store executes graph writes. A failed write leaves earlier writes in place.
type Store interface {
	RunWrite(ctx context.Context, w Write) error
}

// Reader exposes the stored graph
type Reader interface {
	FullGraph(ctx context.Context) (*Graph, error)
}

// Backend is a Store that can also be read back
type Backend interface {
	Store
	Reader
}

// MemoryURI selects the in-process store instead of a database
const MemoryURI = "memory://"

// Open returns the configured backend, or nil when the graph is disabled
func Open(cfg model.GraphConfig, logger *slog.Logger) Backend {
	switch {
	case !cfg.Enabled:
		return nil
	case cfg.URI == MemoryURI:
		return NewMemoryStore()
	default:
		return NewNeo4jClient(cfg, logger)
	}
}

// NodeItem is one node of a MergeNodes batch
type NodeItem struct {
	Key   string
	Props map[string]any
}

// MergeNodes upserts a batch of nodes sharing a label, matched on the KeyProp property
type MergeNodes struct {
	Label   string
	KeyProp string
	Items   []NodeItem
}

// Cypher implements Write
func (m MergeNodes) Cypher() (string, map[string]any) {
	batch := make([]map[string]any, len(m.Items))
	for i, it := range m.Items {
		props := it.Props
		if props == nil {
			props = map[string]any{}
		}
		batch[i] = map[string]any{"key": it.Key, "props": props}
	}
	stmt := fmt.Sprintf("UNWIND $batch AS item MERGE (n:%s {%s: item.key}) SET n += item.props", m.Label, m.KeyProp)
	return stmt, map[string]any{"batch": batch}
}

// MergeRelationship upserts a typed edge between two existing nodes matched by name.
// Type must already be sanitized.
type MergeRelationship struct {
	SourceLabel string
	Source      string
	TargetLabel string
	Target      string
	Type        string
	Props       map[string]any
}

// Cypher implements Write
func (m MergeRelationship) Cypher() (string, map[string]any) {
	props := m.Props
	if props == nil {
		props = map[string]any{}
	}
	stmt := fmt.Sprintf("MATCH (a:%s {name: $source}) MATCH (b:%s {name: $target}) MERGE (a)-[r:%s]->(b) SET r += $props",
		m.SourceLabel, m.TargetLabel, m.Type)
	return stmt, map[string]any{"source": m.Source, "target": m.Target, "props": props}
}

// Node is a stored graph node
type Node struct {
	ID         string         `json:"id"`
	Labels     []string       `json:"labels"`
	Properties map[string]any `json:"properties"`
}

// Relationship is a stored directed edge between two node IDs
type Relationship struct {
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
}

// Graph is a full read of the store
type Graph struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

type nodeRef struct {
	label, key string
}

type relRef struct {
	source, target, typ string
}

// MemoryStore keeps the graph in process. It applies MergeNodes and
// MergeRelationship with the same upsert semantics as the database.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int
	nodes  map[nodeRef]*Node
	order  []nodeRef
	rels   map[relRef]*Relationship
	relSeq []relRef
}

// NewMemoryStore creates an empty in-process graph
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[nodeRef]*Node),
		rels:  make(map[relRef]*Relationship),
	}
}

// RunWrite applies w
func (s *MemoryStore) RunWrite(ctx context.Context, w Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch w := w.(type) {
	case MergeNodes:
		for _, it := range w.Items {
			ref := nodeRef{w.Label, it.Key}
			n, ok := s.nodes[ref]
			if !ok {
				s.nextID++
				n = &Node{
					ID:         strconv.Itoa(s.nextID),
					Labels:     []string{w.Label},
					Properties: map[string]any{w.KeyProp: it.Key},
				}
				s.nodes[ref] = n
				s.order = append(s.order, ref)
			}
			maps.Copy(n.Properties, it.Props)
		}
	case MergeRelationship:
		a, okA := s.nodes[nodeRef{w.SourceLabel, w.Source}]
		b, okB := s.nodes[nodeRef{w.TargetLabel, w.Target}]
		if !okA || !okB {
			// MATCH found nothing, so nothing is merged
			return nil
		}
		ref := relRef{a.ID, b.ID, w.Type}
		r, ok := s.rels[ref]
		if !ok {
			r = &Relationship{Source: a.ID, Target: b.ID, Type: w.Type, Properties: map[string]any{}}
			s.rels[ref] = r
			s.relSeq = append(s.relSeq, ref)
		}
		maps.Copy(r.Properties, w.Props)
	default:
		return fmt.Errorf("memory store: unsupported write %T", w)
	}
	return nil
}

// FullGraph returns a copy of every node and relationship in insertion order
func (s *MemoryStore) FullGraph(ctx context.Context) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := &Graph{Nodes: []Node{}, Relationships: []Relationship{}}
	for _, ref := range s.order {
		n := s.nodes[ref]
		g.Nodes = append(g.Nodes, Node{ID: n.ID, Labels: slices.Clone(n.Labels), Properties: maps.Clone(n.Properties)})
	}
	for _, ref := range s.relSeq {
		r := s.rels[ref]
		g.Relationships = append(g.Relationships, Relationship{
			Source: r.Source, Target: r.Target, Type: r.Type, Properties: maps.Clone(r.Properties),
		})
	}
	return g, nil
}
