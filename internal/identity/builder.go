package identity

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ppiankov/dossier/internal/metrics"
	"github.com/ppiankov/dossier/internal/model"
)

// organizationCategories are fact categories whose entities are taken to be organisations
var organizationCategories = map[string]bool{
	"professional": true,
	"financial":    true,
}

// BuildStats summarises one Build
type BuildStats struct {
	Persons       int `json:"persons"`
	Organizations int `json:"organizations"`
	Documents     int `json:"documents"`
	Relationships int `json:"relationships"`
	Failed        int `json:"failed"`
}

// Builder writes research output to a Store
type Builder struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewBuilder creates a builder; logger and m may be nil
func NewBuilder(store Store, logger *slog.Logger, m *metrics.Metrics) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{store: store, logger: logger, metrics: m}
}

// Build upserts the target, every entity named by facts, the documents
// facts were sourced from and each connection. Entity type is decided by
// the first fact naming it. Write failures are logged and counted, never returned.
func (b *Builder) Build(ctx context.Context, target string, facts []model.Fact, connections []model.Connection) BuildStats {
	b.logger.Info("building identity graph", slog.String("target", target),
		slog.Int("facts", len(facts)), slog.Int("connections", len(connections)))

	persons := []NodeItem{{Key: target, Props: map[string]any{"role": "research_target"}}}
	var orgs, docs []NodeItem
	types := make(map[string]string)
	seenDocs := make(map[string]bool)

	for _, f := range facts {
		for _, entity := range f.Entities {
			if entity == "" || strings.EqualFold(entity, target) {
				continue
			}
			if _, ok := types[entity]; ok {
				continue
			}
			if organizationCategories[f.Category] {
				orgs = append(orgs, NodeItem{Key: entity})
				types[entity] = LabelOrganization
			} else {
				persons = append(persons, NodeItem{Key: entity})
				types[entity] = LabelPerson
			}
		}

		if f.SourceURL != "" && f.SourceTitle != "" && !seenDocs[f.SourceTitle] {
			seenDocs[f.SourceTitle] = true
			docs = append(docs, NodeItem{
				Key:   f.SourceTitle,
				Props: map[string]any{"url": f.SourceURL, "confidence": f.Confidence},
			})
		}
	}

	var stats BuildStats
	if b.writeNodes(ctx, LabelPerson, "name", persons) {
		stats.Persons = len(persons)
	} else {
		stats.Failed++
	}
	if b.writeNodes(ctx, LabelOrganization, "name", orgs) {
		stats.Organizations = len(orgs)
	} else {
		stats.Failed++
	}
	if b.writeNodes(ctx, LabelDocument, "title", docs) {
		stats.Documents = len(docs)
	} else {
		stats.Failed++
	}

	for _, c := range connections {
		w := MergeRelationship{
			SourceLabel: labelFor(types, c.SourceEntity),
			Source:      c.SourceEntity,
			TargetLabel: labelFor(types, c.TargetEntity),
			Target:      c.TargetEntity,
			Type:        SanitizeRelType(c.Relationship),
			Props: map[string]any{
				"description": c.Description,
				"confidence":  c.Confidence,
			},
		}
		if err := b.store.RunWrite(ctx, w); err != nil {
			stats.Failed++
			b.metrics.IncGraphWriteFailure()
			b.logger.Warn("skipping relationship",
				slog.String("source", c.SourceEntity),
				slog.String("target", c.TargetEntity),
				slog.Any("error", err))
			continue
		}
		stats.Relationships++
	}

	b.logger.Info("identity graph built",
		slog.String("target", target),
		slog.Int("persons", stats.Persons),
		slog.Int("organizations", stats.Organizations),
		slog.Int("documents", stats.Documents),
		slog.Int("relationships", stats.Relationships),
		slog.Int("failed", stats.Failed))
	return stats
}

func (b *Builder) writeNodes(ctx context.Context, label, keyProp string, items []NodeItem) bool {
	if len(items) == 0 {
		return true
	}
	if err := b.store.RunWrite(ctx, MergeNodes{Label: label, KeyProp: keyProp, Items: items}); err != nil {
		b.metrics.IncGraphWriteFailure()
		b.logger.Warn("skipping node batch",
			slog.String("label", label),
			slog.Int("nodes", len(items)),
			slog.Any("error", err))
		return false
	}
	return true
}

// labelFor resolves the label of an entity; anything unseen, the target included, is a Person
func labelFor(types map[string]string, entity string) string {
	if l, ok := types[entity]; ok {
		return l
	}
	return LabelPerson
}
