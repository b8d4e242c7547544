package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ppiankov/dossier/internal/model"
)

// ErrGraphDisabled is returned when the graph store is not configured
var ErrGraphDisabled = errors.New("identity graph store is disabled")

const (
	fullGraphNodes = "MATCH (n) RETURN elementId(n) AS id, labels(n) AS labels, properties(n) AS props"
	fullGraphRels  = "MATCH (a)-[r]->(b) RETURN elementId(a) AS source, elementId(b) AS target, type(r) AS type, properties(r) AS props"
)

// Neo4jClient is a Store and Reader backed by a Neo4j database.
// The driver is created on first use, or explicitly with Connect.
type Neo4jClient struct {
	cfg    model.GraphConfig
	logger *slog.Logger

	mu     sync.Mutex
	driver neo4j.DriverWithContext
}

// NewNeo4jClient creates a client; nothing is dialled until Connect or the first query
func NewNeo4jClient(cfg model.GraphConfig, logger *slog.Logger) *Neo4jClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &Neo4jClient{cfg: cfg, logger: logger}
}

// SelfSignedURI switches the +s schemes to +ssc so self-signed certificates are accepted
func SelfSignedURI(uri string) string {
	for _, scheme := range []string{"neo4j+s://", "bolt+s://"} {
		if rest, ok := strings.CutPrefix(uri, scheme); ok {
			return strings.TrimSuffix(scheme, "://") + "sc://" + rest
		}
	}
	return uri
}

// Connect dials the database and verifies connectivity. Calling it again is a no-op.
func (c *Neo4jClient) Connect(ctx context.Context) error {
	_, err := c.conn(ctx)
	return err
}

func (c *Neo4jClient) conn(ctx context.Context) (neo4j.DriverWithContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver != nil {
		return c.driver, nil
	}
	if c.cfg.URI == "" {
		return nil, ErrGraphDisabled
	}

	uri := SelfSignedURI(c.cfg.URI)
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(c.cfg.Username, c.cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect to neo4j at %s: %w", uri, err)
	}

	c.logger.Info("connected to neo4j", slog.String("uri", uri))
	c.driver = driver
	return driver, nil
}

// Close releases the driver
func (c *Neo4jClient) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.driver == nil {
		return nil
	}
	err := c.driver.Close(ctx)
	c.driver = nil
	c.logger.Info("neo4j connection closed")
	return err
}

func (c *Neo4jClient) session(ctx context.Context, mode neo4j.AccessMode) (neo4j.SessionWithContext, error) {
	driver, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	return driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: c.cfg.Database}), nil
}

// RunWrite executes w in its own auto-commit transaction
func (c *Neo4jClient) RunWrite(ctx context.Context, w Write) error {
	session, err := c.session(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	stmt, params := w.Cypher()
	result, err := session.Run(ctx, stmt, params)
	if err != nil {
		return fmt.Errorf("run write: %w", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("consume write: %w", err)
	}
	return nil
}

// FullGraph reads every node and relationship
func (c *Neo4jClient) FullGraph(ctx context.Context) (*Graph, error) {
	session, err := c.session(ctx, neo4j.AccessModeRead)
	if err != nil {
		return nil, err
	}
	defer session.Close(ctx)

	g := &Graph{Nodes: []Node{}, Relationships: []Relationship{}}

	nodes, err := collect(ctx, session, fullGraphNodes)
	if err != nil {
		return nil, err
	}
	for _, rec := range nodes {
		g.Nodes = append(g.Nodes, Node{
			ID:         asString(rec["id"]),
			Labels:     asStrings(rec["labels"]),
			Properties: asProps(rec["props"]),
		})
	}

	rels, err := collect(ctx, session, fullGraphRels)
	if err != nil {
		return nil, err
	}
	for _, rec := range rels {
		g.Relationships = append(g.Relationships, Relationship{
			Source:     asString(rec["source"]),
			Target:     asString(rec["target"]),
			Type:       asString(rec["type"]),
			Properties: asProps(rec["props"]),
		})
	}
	return g, nil
}

// Clear deletes every node and relationship
func (c *Neo4jClient) Clear(ctx context.Context) error {
	session, err := c.session(ctx, neo4j.AccessModeWrite)
	if err != nil {
		return err
	}
	defer session.Close(ctx)

	result, err := session.Run(ctx, "MATCH (n) DETACH DELETE n", nil)
	if err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	if _, err := result.Consume(ctx); err != nil {
		return fmt.Errorf("clear graph: %w", err)
	}
	c.logger.Warn("neo4j database cleared")
	return nil
}

func collect(ctx context.Context, session neo4j.SessionWithContext, stmt string) ([]map[string]any, error) {
	result, err := session.Run(ctx, stmt, nil)
	if err != nil {
		return nil, fmt.Errorf("run read: %w", err)
	}
	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collect read: %w", err)
	}
	out := make([]map[string]any, len(records))
	for i, r := range records {
		out[i] = r.AsMap()
	}
	return out, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asProps(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
