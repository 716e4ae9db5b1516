package graph

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// ============================================================================
// Record Conversion Helpers
// ============================================================================

// nodeFromDB converts a driver node into a client node with slimmed properties.
func nodeFromDB(n dbtype.Node) Node {
	labels := make([]string, len(n.Labels))
	copy(labels, n.Labels)
	return Node{
		ID:         n.ElementId,
		Labels:     labels,
		Properties: SlimProperties(n.Props),
	}
}

// relationshipFromDB converts a driver relationship into a client relationship.
func relationshipFromDB(r dbtype.Relationship) Relationship {
	return Relationship{
		ID:          r.ElementId,
		Type:        r.Type,
		StartNodeID: r.StartElementId,
		EndNodeID:   r.EndElementId,
		Properties:  SlimProperties(r.Props),
	}
}

// collectNodes appends driver nodes from a raw record value, deduplicating by
// element id across calls via seen.
func collectNodes(into []Node, raw interface{}, seen map[string]struct{}) []Node {
	list, ok := raw.([]interface{})
	if !ok {
		return into
	}
	for _, item := range list {
		n, ok := item.(dbtype.Node)
		if !ok {
			continue
		}
		if _, dup := seen[n.ElementId]; dup {
			continue
		}
		seen[n.ElementId] = struct{}{}
		into = append(into, nodeFromDB(n))
	}
	return into
}

// collectRelationships appends driver relationships from a raw record value,
// deduplicating by element id across calls via seen.
func collectRelationships(into []Relationship, raw interface{}, seen map[string]struct{}) []Relationship {
	list, ok := raw.([]interface{})
	if !ok {
		return into
	}
	for _, item := range list {
		r, ok := item.(dbtype.Relationship)
		if !ok {
			continue
		}
		if _, dup := seen[r.ElementId]; dup {
			continue
		}
		seen[r.ElementId] = struct{}{}
		into = append(into, relationshipFromDB(r))
	}
	return into
}

func getStringSliceFromRecordValue(raw interface{}) []string {
	list, ok := raw.([]interface{})
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func getInt64FromMap(m map[string]interface{}, key string) int64 {
	val, ok := m[key]
	if !ok || val == nil {
		return 0
	}
	switch v := val.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func getStringFromMap(m map[string]interface{}, key, defaultValue string) string {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}
	if s, ok := val.(string); ok {
		return s
	}
	return defaultValue
}
