package graph

// ============================================================================
// Property Graph Types
// ============================================================================

// Node is a single vertex of the visualized property graph. The ID is the
// database element id and is unique within one merged graph.
type Node struct {
	ID         string                 `json:"id"`
	Labels     []string               `json:"labels"`
	Properties map[string]interface{} `json:"properties"`
}

// PrimaryLabel returns the first label, used for color and size lookups.
func (n *Node) PrimaryLabel() string {
	if len(n.Labels) == 0 {
		return "Unknown"
	}
	return n.Labels[0]
}

// IsSchemaNode reports whether the node is a type-level summary node rather
// than a concrete entity. Schema nodes are excluded from insight counts.
func (n *Node) IsSchemaNode() bool {
	if n.Properties == nil {
		return false
	}
	v, ok := n.Properties["isSchemaNode"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// Count returns the aggregation count carried by schema nodes, if present.
func (n *Node) Count() (int64, bool) {
	if n.Properties == nil {
		return 0, false
	}
	switch v := n.Properties["count"].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Relationship is a single edge of the visualized property graph. Endpoints
// normally reference nodes in the same graph, but a relationship is never
// pruned when an endpoint is absent; that is the renderer's concern.
type Relationship struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	StartNodeID string                 `json:"startNodeId"`
	EndNodeID   string                 `json:"endNodeId"`
	Properties  map[string]interface{} `json:"properties"`
}

// Graph is an ordered collection of nodes and relationships. A Graph value is
// either a full merged graph owned by a session or a fragment produced by one
// extraction or fetch.
type Graph struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// IsEmpty reports whether the graph carries no nodes and no relationships.
func (g *Graph) IsEmpty() bool {
	return g == nil || (len(g.Nodes) == 0 && len(g.Relationships) == 0)
}

// NodeIDs returns the set of node ids present in the graph.
func (g *Graph) NodeIDs() map[string]struct{} {
	if g == nil {
		return map[string]struct{}{}
	}
	ids := make(map[string]struct{}, len(g.Nodes))
	for i := range g.Nodes {
		ids[g.Nodes[i].ID] = struct{}{}
	}
	return ids
}

// NodeIDList returns the node ids in graph order.
func (g *Graph) NodeIDList() []string {
	if g == nil {
		return nil
	}
	ids := make([]string, 0, len(g.Nodes))
	for i := range g.Nodes {
		ids = append(ids, g.Nodes[i].ID)
	}
	return ids
}

// Copy returns a shallow copy with fresh element slices. Element properties
// are shared; callers treat them as read-only.
func (g *Graph) Copy() *Graph {
	if g == nil {
		return &Graph{}
	}
	out := &Graph{
		Nodes:         make([]Node, len(g.Nodes)),
		Relationships: make([]Relationship, len(g.Relationships)),
	}
	copy(out.Nodes, g.Nodes)
	copy(out.Relationships, g.Relationships)
	return out
}
