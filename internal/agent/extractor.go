package agent

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"graphlens/internal/graph"
	apperrors "graphlens/pkg/errors"
)

// NeighborhoodFetcher is the slice of the graph-read service the extractor
// needs for its fallback fetch.
type NeighborhoodFetcher interface {
	Neighborhood(ctx context.Context, nodeID string, depth, limit int) (*graph.Graph, error)
}

// Parameter names that carry a single entity id. The set is fixed and
// explicit so extraction stays auditable; a tool author who wants reliable
// visualization should embed graph_data instead of relying on this scan.
var idParamNames = []string{
	"node_id",
	"decision_id",
	"customer_id",
	"account_id",
	"start_id",
	"end_id",
}

// Collection names whose records may each carry an `id` field.
var idCollectionNames = []string{
	"nodes",
	"results",
	"decisions",
	"customers",
	"accounts",
}

// Extractor derives a graph fragment from a resolved tool invocation. It is
// deliberately heuristic and best-effort: most tools either embed graph_data
// directly or produce nothing visualizable.
type Extractor struct {
	fetcher NeighborhoodFetcher
	depth   int
	limit   int
	idCap   int // ids collected per payload collection
	logger  *zap.Logger
}

// NewExtractor creates an extractor backed by the given fetcher.
func NewExtractor(fetcher NeighborhoodFetcher, depth, limit, idCap int, logger *zap.Logger) *Extractor {
	if depth < 1 {
		depth = 2
	}
	if limit < 1 {
		limit = 50
	}
	if idCap < 1 {
		idCap = 5
	}
	return &Extractor{
		fetcher: fetcher,
		depth:   depth,
		limit:   limit,
		idCap:   idCap,
		logger:  logger,
	}
}

// Extract resolves a graph fragment for an invocation, trying in order:
// an embedded graph_data object, legacy top-level node/relationship
// collections, then a neighborhood fetch seeded by ids scavenged from the
// input parameters and output payload. A nil fragment with nil error is the
// normal outcome for tools that are not graph-producing.
func (e *Extractor) Extract(ctx context.Context, inv *Invocation) (*graph.Graph, error) {
	payload := decodePayload(inv.Output)

	if payload != nil {
		if g := graphFromValue(payload["graph_data"]); len(g.Nodes) > 0 {
			return g, nil
		}
		if g := graphFromValue(payload); len(g.Nodes) > 0 {
			return g, nil
		}
	}

	ids := collectEntityIDs(inv.Input, e.idCap)
	ids = append(ids, collectEntityIDs(payload, e.idCap)...)
	ids = dedupeIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	// Only the first id seeds a fetch; fan-out over every collected id would
	// flood the canvas.
	fragment, err := e.fetcher.Neighborhood(ctx, ids[0], e.depth, e.limit)
	if err != nil {
		return nil, apperrors.NewExtractionFailed(inv.Name, err)
	}
	if fragment.IsEmpty() {
		return nil, nil
	}
	return fragment, nil
}

// decodePayload normalizes a tool output into a map. Outputs may arrive
// already decoded or as a JSON text block.
func decodePayload(output interface{}) map[string]interface{} {
	switch v := output.(type) {
	case map[string]interface{}:
		return v
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			return m
		}
	}
	return nil
}

// graphFromValue parses a {nodes, relationships} shape. Elements without an
// id are skipped. Always returns a non-nil graph; empty when the value does
// not carry the shape.
func graphFromValue(value interface{}) *graph.Graph {
	g := &graph.Graph{}
	m, ok := value.(map[string]interface{})
	if !ok {
		return g
	}

	if rawNodes, ok := m["nodes"].([]interface{}); ok {
		for _, raw := range rawNodes {
			nm, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			id, _ := nm["id"].(string)
			if id == "" {
				continue
			}
			node := graph.Node{ID: id, Properties: map[string]interface{}{}}
			if labels, ok := nm["labels"].([]interface{}); ok {
				for _, l := range labels {
					if s, ok := l.(string); ok {
						node.Labels = append(node.Labels, s)
					}
				}
			}
			if props, ok := nm["properties"].(map[string]interface{}); ok {
				node.Properties = props
			}
			g.Nodes = append(g.Nodes, node)
		}
	}

	if rawRels, ok := m["relationships"].([]interface{}); ok {
		for _, raw := range rawRels {
			rm, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			id, _ := rm["id"].(string)
			if id == "" {
				continue
			}
			rel := graph.Relationship{ID: id, Properties: map[string]interface{}{}}
			rel.Type, _ = rm["type"].(string)
			rel.StartNodeID, _ = rm["startNodeId"].(string)
			rel.EndNodeID, _ = rm["endNodeId"].(string)
			if props, ok := rm["properties"].(map[string]interface{}); ok {
				rel.Properties = props
			}
			g.Relationships = append(g.Relationships, rel)
		}
	}

	return g
}

// collectEntityIDs scans a payload for the known id-bearing fields and
// id-carrying record collections, capped per collection.
func collectEntityIDs(payload map[string]interface{}, capPer int) []string {
	if payload == nil {
		return nil
	}

	var ids []string
	for _, name := range idParamNames {
		if s, ok := payload[name].(string); ok && s != "" {
			ids = append(ids, s)
		}
	}

	for _, name := range idCollectionNames {
		records, ok := payload[name].([]interface{})
		if !ok {
			continue
		}
		taken := 0
		for _, raw := range records {
			if taken >= capPer {
				break
			}
			rm, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if id, ok := rm["id"].(string); ok && id != "" {
				ids = append(ids, id)
				taken++
			}
		}
	}

	return ids
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
