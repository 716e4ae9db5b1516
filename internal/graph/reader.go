package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"graphlens/pkg/logger"
)

// Reader is the graph-read collaborator: bounded neighborhood fetches, edge
// backfill between visible nodes, full-graph snapshots, and the schema cache.
// All queries are read-only.
type Reader struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger

	schemaMu sync.RWMutex
	schema   *Schema
}

// NewReader creates a reader on an existing driver.
func NewReader(driver neo4j.DriverWithContext, database string) *Reader {
	return &Reader{
		driver:   driver,
		database: database,
		logger:   logger.Get(),
	}
}

// Close closes the underlying driver connection.
func (r *Reader) Close() error {
	return r.driver.Close(context.Background())
}

// Neighborhood returns the subgraph centered on nodeID up to the given depth.
// With an empty nodeID it returns a bounded full-graph snapshot instead, used
// on initial load. An unknown node id yields an empty graph, not an error.
func (r *Reader) Neighborhood(ctx context.Context, nodeID string, depth, limit int) (*Graph, error) {
	if nodeID == "" {
		return r.snapshot(ctx, limit)
	}
	if depth < 1 {
		depth = 1
	}
	if limit < 1 {
		limit = 50
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	// Variable-length patterns cannot take a depth parameter.
	query := fmt.Sprintf(`
		MATCH (c) WHERE elementId(c) = $nodeID OR c.id = $nodeID
		WITH c LIMIT 1
		OPTIONAL MATCH path = (c)-[*1..%d]-(m)
		WITH c, collect(path) AS paths
		WITH [c] + reduce(ns = [], p IN paths | ns + nodes(p)) AS rawNodes,
		     reduce(rs = [], p IN paths | rs + relationships(p)) AS rawRels
		RETURN rawNodes[0..$limit] AS nodes, rawRels AS rels
	`, depth)

	result, err := session.Run(ctx, query, map[string]interface{}{
		"nodeID": nodeID,
		"limit":  limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch neighborhood: %w", err)
	}
	return r.graphFromResult(ctx, result)
}

// snapshot returns up to limit seed nodes plus their direct neighbors and the
// relationships among them.
func (r *Reader) snapshot(ctx context.Context, limit int) (*Graph, error) {
	if limit < 1 {
		limit = 100
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	query := `
		MATCH (n) WITH n LIMIT $limit
		OPTIONAL MATCH (n)-[r]-(m)
		WITH collect(DISTINCT n) + collect(DISTINCT m) AS nodes,
		     collect(DISTINCT r) AS rels
		RETURN [x IN nodes WHERE x IS NOT NULL] AS nodes,
		       [x IN rels WHERE x IS NOT NULL] AS rels
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	return r.graphFromResult(ctx, result)
}

// RelationshipsAmong returns every relationship whose both endpoints are in
// the given node id set. The expansion flow uses this to close edges the
// radius-limited neighbor query missed.
func (r *Reader) RelationshipsAmong(ctx context.Context, nodeIDs []string) ([]Relationship, error) {
	if len(nodeIDs) == 0 {
		return nil, nil
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	query := `
		MATCH (a)-[rel]-(b)
		WHERE elementId(a) IN $ids AND elementId(b) IN $ids
		RETURN collect(DISTINCT rel) AS rels
	`

	result, err := session.Run(ctx, query, map[string]interface{}{"ids": nodeIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch relationships: %w", err)
	}

	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		return nil, nil
	}

	record := result.Record()
	raw, _ := record.Get("rels")
	var rels []Relationship
	rels = collectRelationships(rels, raw, map[string]struct{}{})
	return rels, nil
}

// graphFromResult reads a single record with `nodes` and `rels` collections.
func (r *Reader) graphFromResult(ctx context.Context, result neo4j.ResultWithContext) (*Graph, error) {
	g := &Graph{}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		return g, nil
	}

	record := result.Record()
	seenNodes := map[string]struct{}{}
	seenRels := map[string]struct{}{}

	rawNodes, _ := record.Get("nodes")
	g.Nodes = collectNodes(g.Nodes, rawNodes, seenNodes)

	rawRels, _ := record.Get("rels")
	g.Relationships = collectRelationships(g.Relationships, rawRels, seenRels)

	r.logger.Debug("Graph fetched",
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("relationships", len(g.Relationships)),
	)
	return g, nil
}
