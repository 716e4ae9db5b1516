package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_ResolvesByName(t *testing.T) {
	tr := NewTracker()
	tr.Register("query_graph", map[string]interface{}{"q": "MATCH (n) RETURN n"})

	inv, ok := tr.Resolve("query_graph", "some output")

	require.True(t, ok)
	assert.Equal(t, "query_graph", inv.Name)
	assert.Equal(t, "some output", inv.Output)
	assert.True(t, inv.Resolved())
}

func TestTracker_SameNameResolvesInRegistrationOrder(t *testing.T) {
	tr := NewTracker()
	first := tr.Register("search_nodes", map[string]interface{}{"term": "alice"})
	second := tr.Register("search_nodes", map[string]interface{}{"term": "bob"})

	got1, ok1 := tr.Resolve("search_nodes", "result-for-alice")
	got2, ok2 := tr.Resolve("search_nodes", "result-for-bob")

	require.True(t, ok1)
	require.True(t, ok2)
	assert.Same(t, first, got1)
	assert.Same(t, second, got2)
	assert.Equal(t, "result-for-alice", first.Output)
	assert.Equal(t, "result-for-bob", second.Output)
}

func TestTracker_InterleavedNames(t *testing.T) {
	tr := NewTracker()
	a1 := tr.Register("tool_a", nil)
	b1 := tr.Register("tool_b", nil)
	a2 := tr.Register("tool_a", nil)

	gotB, _ := tr.Resolve("tool_b", "b-out")
	gotA1, _ := tr.Resolve("tool_a", "a-out-1")
	gotA2, _ := tr.Resolve("tool_a", "a-out-2")

	assert.Same(t, b1, gotB)
	assert.Same(t, a1, gotA1)
	assert.Same(t, a2, gotA2)
}

func TestTracker_OrphanedResultDropped(t *testing.T) {
	tr := NewTracker()
	tr.Register("tool_a", nil)

	inv, ok := tr.Resolve("tool_b", "orphan")

	assert.False(t, ok)
	assert.Nil(t, inv)
}

func TestTracker_SecondResultForSameInvocationIsOrphan(t *testing.T) {
	tr := NewTracker()
	tr.Register("tool_a", nil)

	_, ok := tr.Resolve("tool_a", "first")
	require.True(t, ok)

	_, ok = tr.Resolve("tool_a", "second")
	assert.False(t, ok)
}

func TestTracker_Pending(t *testing.T) {
	tr := NewTracker()
	assert.Equal(t, 0, tr.Pending())

	tr.Register("tool_a", nil)
	tr.Register("tool_a", nil)
	assert.Equal(t, 2, tr.Pending())

	tr.Resolve("tool_a", "out")
	assert.Equal(t, 1, tr.Pending())
}

func TestTracker_NilInputNormalized(t *testing.T) {
	tr := NewTracker()
	inv := tr.Register("tool_a", nil)
	assert.NotNil(t, inv.Input)
}
