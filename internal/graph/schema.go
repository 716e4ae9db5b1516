package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// SchemaPattern is one observed (from)-[type]->(to) connectivity pattern.
type SchemaPattern struct {
	FromLabel string `json:"fromLabel"`
	RelType   string `json:"relType"`
	ToLabel   string `json:"toLabel"`
	Count     int64  `json:"count"`
}

// Schema describes the shape of the graph database: labels, relationship
// types, their counts, connectivity patterns, and property keys. It is cached
// at startup and refreshed on demand.
type Schema struct {
	NodeLabels         []string         `json:"nodeLabels"`
	NodeCounts         map[string]int64 `json:"nodeCounts"`
	RelationshipTypes  []string         `json:"relationshipTypes"`
	RelationshipCounts map[string]int64 `json:"relationshipCounts"`
	Patterns           []SchemaPattern  `json:"patterns"`
	PropertyKeys       []string         `json:"propertyKeys"`
}

// Summary renders a compact text block suitable for a system prompt or the
// UI legend.
func (s *Schema) Summary() string {
	if s == nil {
		return "Schema not available."
	}

	var lines []string

	if len(s.NodeLabels) > 0 {
		lines = append(lines, "## Node Labels (with counts)")
		for _, label := range s.NodeLabels {
			lines = append(lines, fmt.Sprintf("- %s: %d nodes", label, s.NodeCounts[label]))
		}
	}

	if len(s.RelationshipTypes) > 0 {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "## Relationship Types (with counts)")
		for _, rt := range s.RelationshipTypes {
			lines = append(lines, fmt.Sprintf("- %s: %d relationships", rt, s.RelationshipCounts[rt]))
		}
	}

	if len(s.Patterns) > 0 {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "## Relationship Patterns (from -[type]-> to)")
		patterns := s.Patterns
		if len(patterns) > 50 {
			patterns = patterns[:50]
		}
		for _, p := range patterns {
			lines = append(lines, fmt.Sprintf("- (%s)-[%s]->(%s): %d", p.FromLabel, p.RelType, p.ToLabel, p.Count))
		}
	}

	if len(s.PropertyKeys) > 0 {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "## Property Keys (available on nodes/relationships)")
		keys := s.PropertyKeys
		suffix := ""
		if len(keys) > 30 {
			keys = keys[:30]
			suffix = "..."
		}
		lines = append(lines, strings.Join(keys, ", ")+suffix)
	}

	if len(lines) == 0 {
		return "Empty schema."
	}
	return strings.Join(lines, "\n")
}

// Schema returns the cached schema, fetching it on first use.
func (r *Reader) Schema(ctx context.Context) (*Schema, error) {
	r.schemaMu.RLock()
	cached := r.schema
	r.schemaMu.RUnlock()
	if cached != nil {
		return cached, nil
	}
	return r.RefreshSchema(ctx)
}

// SchemaSummary returns the prompt-ready text rendering of the cached schema.
func (r *Reader) SchemaSummary(ctx context.Context) (string, error) {
	schema, err := r.Schema(ctx)
	if err != nil {
		return "", err
	}
	return schema.Summary(), nil
}

// RefreshSchema re-reads the schema from the database. The old cache is kept
// when the refresh fails.
func (r *Reader) RefreshSchema(ctx context.Context) (*Schema, error) {
	schema, err := r.fetchSchema(ctx)
	if err != nil {
		r.schemaMu.RLock()
		cached := r.schema
		r.schemaMu.RUnlock()
		if cached != nil {
			return cached, err
		}
		return nil, err
	}

	r.schemaMu.Lock()
	r.schema = schema
	r.schemaMu.Unlock()
	return schema, nil
}

func (r *Reader) fetchSchema(ctx context.Context) (*Schema, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	schema := &Schema{
		NodeCounts:         map[string]int64{},
		RelationshipCounts: map[string]int64{},
	}

	nodeQuery := `
		MATCH (n) UNWIND labels(n) AS l
		WITH l, count(*) AS c ORDER BY c DESC
		RETURN collect({label: l, count: c}) AS node_counts
	`
	record, err := runSingle(ctx, session, nodeQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch node counts: %w", err)
	}
	if record != nil {
		raw, _ := record.Get("node_counts")
		for _, item := range asMapList(raw) {
			label := getStringFromMap(item, "label", "")
			if label == "" {
				continue
			}
			schema.NodeLabels = append(schema.NodeLabels, label)
			schema.NodeCounts[label] = getInt64FromMap(item, "count")
		}
	}

	relQuery := `
		MATCH ()-[rel]->()
		WITH type(rel) AS t, count(*) AS c ORDER BY c DESC
		RETURN collect({type: t, count: c}) AS rel_counts
	`
	record, err = runSingle(ctx, session, relQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch relationship counts: %w", err)
	}
	if record != nil {
		raw, _ := record.Get("rel_counts")
		for _, item := range asMapList(raw) {
			relType := getStringFromMap(item, "type", "")
			if relType == "" {
				continue
			}
			schema.RelationshipTypes = append(schema.RelationshipTypes, relType)
			schema.RelationshipCounts[relType] = getInt64FromMap(item, "count")
		}
	}

	patternQuery := `
		MATCH (a)-[rel]->(b)
		WITH labels(a)[0] AS from_label, type(rel) AS rel_type, labels(b)[0] AS to_label, count(*) AS c
		ORDER BY c DESC
		RETURN collect({from_label: from_label, rel_type: rel_type, to_label: to_label, count: c}) AS patterns
	`
	record, err = runSingle(ctx, session, patternQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch patterns: %w", err)
	}
	if record != nil {
		raw, _ := record.Get("patterns")
		for _, item := range asMapList(raw) {
			schema.Patterns = append(schema.Patterns, SchemaPattern{
				FromLabel: getStringFromMap(item, "from_label", "?"),
				RelType:   getStringFromMap(item, "rel_type", "?"),
				ToLabel:   getStringFromMap(item, "to_label", "?"),
				Count:     getInt64FromMap(item, "count"),
			})
		}
	}

	keysQuery := `CALL db.propertyKeys() YIELD propertyKey RETURN collect(propertyKey) AS keys`
	record, err = runSingle(ctx, session, keysQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch property keys: %w", err)
	}
	if record != nil {
		raw, _ := record.Get("keys")
		schema.PropertyKeys = getStringSliceFromRecordValue(raw)
	}

	return schema, nil
}

func runSingle(ctx context.Context, session neo4j.SessionWithContext, query string, params map[string]interface{}) (*neo4j.Record, error) {
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return result.Record(), nil
}

func asMapList(raw interface{}) []map[string]interface{} {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
