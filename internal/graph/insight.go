package graph

import "sort"

// FrequencyCount is one label or relationship type with its occurrence count.
type FrequencyCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Insight summarizes the merged graph when no specific result set is being
// displayed: how many nodes carry each label and how many relationships carry
// each type. Schema nodes are excluded from the counts.
type Insight struct {
	NodeCount         int              `json:"nodeCount"`
	RelationshipCount int              `json:"relationshipCount"`
	Labels            []FrequencyCount `json:"labels"`
	RelationshipTypes []FrequencyCount `json:"relationshipTypes"`
}

// Summarize computes the insight for a graph. Returns nil when the graph has
// no countable (non-schema) nodes.
func Summarize(g *Graph) *Insight {
	if g == nil {
		return nil
	}

	labelCounts := make(map[string]int)
	countable := 0
	for i := range g.Nodes {
		n := &g.Nodes[i]
		if n.IsSchemaNode() {
			continue
		}
		countable++
		for _, label := range n.Labels {
			labelCounts[label]++
		}
	}
	if countable == 0 {
		return nil
	}

	typeCounts := make(map[string]int)
	for i := range g.Relationships {
		typeCounts[g.Relationships[i].Type]++
	}

	return &Insight{
		NodeCount:         countable,
		RelationshipCount: len(g.Relationships),
		Labels:            sortedCounts(labelCounts),
		RelationshipTypes: sortedCounts(typeCounts),
	}
}

// sortedCounts orders by descending count, then name, for stable display.
func sortedCounts(counts map[string]int) []FrequencyCount {
	out := make([]FrequencyCount, 0, len(counts))
	for name, count := range counts {
		out = append(out, FrequencyCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
