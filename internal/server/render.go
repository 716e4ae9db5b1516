package server

import (
	"graphlens/internal/graph"
	"graphlens/internal/palette"
)

const (
	defaultNodeSize  = 25
	maxSchemaSize    = 70
	schemaSizeFactor = 3
	expandedColor    = "#FF6D28"
)

// RenderNode is a node with its render-time derived fields. Color, size, and
// the selected flag are computed fresh from (graph, expansion state,
// selection) on every request and never stored back onto the graph.
type RenderNode struct {
	graph.Node
	Color    string `json:"color"`
	Size     int    `json:"size"`
	Selected bool   `json:"selected,omitempty"`
	Expanded bool   `json:"expanded,omitempty"`
}

// RenderRelationship is a relationship with its display color.
type RenderRelationship struct {
	graph.Relationship
	Color string `json:"color"`
}

// RenderGraph is the projection sent to the visualization.
type RenderGraph struct {
	Nodes         []RenderNode         `json:"nodes"`
	Relationships []RenderRelationship `json:"relationships"`
}

// Render projects a graph snapshot into its visual form.
func Render(g *graph.Graph, expanded map[string]bool, selectedID string) *RenderGraph {
	out := &RenderGraph{
		Nodes:         make([]RenderNode, 0, len(g.Nodes)),
		Relationships: make([]RenderRelationship, 0, len(g.Relationships)),
	}

	for i := range g.Nodes {
		n := g.Nodes[i]
		rn := RenderNode{
			Node:     n,
			Color:    palette.ColorFor(palette.KindNode, n.PrimaryLabel()),
			Size:     nodeSize(&n),
			Selected: selectedID != "" && n.ID == selectedID,
			Expanded: expanded[n.ID],
		}
		if rn.Expanded {
			rn.Color = expandedColor
		}
		out.Nodes = append(out.Nodes, rn)
	}

	for i := range g.Relationships {
		r := g.Relationships[i]
		out.Relationships = append(out.Relationships, RenderRelationship{
			Relationship: r,
			Color:        palette.ColorFor(palette.KindRelationship, r.Type),
		})
	}

	return out
}

// nodeSize scales schema aggregation nodes with their count; everything else
// renders at the default size.
func nodeSize(n *graph.Node) int {
	if !n.IsSchemaNode() {
		return defaultNodeSize
	}
	count, ok := n.Count()
	if !ok || count <= 0 {
		return defaultNodeSize
	}
	size := defaultNodeSize + int(count)/schemaSizeFactor
	if size > maxSchemaSize {
		size = maxSchemaSize
	}
	return size
}
