package graph

// Merge combines base and addition into a new graph without mutating either.
// Every element of base is kept unchanged and in order; addition elements are
// admitted only when their id is not already present, in their given order.
// First occurrence wins, so re-merging the same fragment contributes nothing
// and rendering stays stable across repeated merges.
func Merge(base, addition *Graph) *Graph {
	result := base.Copy()
	if addition.IsEmpty() {
		return result
	}

	seenNodes := make(map[string]struct{}, len(result.Nodes))
	for i := range result.Nodes {
		seenNodes[result.Nodes[i].ID] = struct{}{}
	}
	for i := range addition.Nodes {
		n := addition.Nodes[i]
		if _, ok := seenNodes[n.ID]; ok {
			continue
		}
		seenNodes[n.ID] = struct{}{}
		result.Nodes = append(result.Nodes, n)
	}

	seenRels := make(map[string]struct{}, len(result.Relationships))
	for i := range result.Relationships {
		seenRels[result.Relationships[i].ID] = struct{}{}
	}
	for i := range addition.Relationships {
		r := addition.Relationships[i]
		if _, ok := seenRels[r.ID]; ok {
			continue
		}
		seenRels[r.ID] = struct{}{}
		result.Relationships = append(result.Relationships, r)
	}

	return result
}
