package agent

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graphlens/internal/graph"
)

// scriptedSource replays a fixed event sequence, then ends the stream.
type scriptedSource struct {
	events []*Event
	tail   error // returned after the script runs out; defaults to io.EOF
	idx    int
	closed bool
}

func (s *scriptedSource) Next(ctx context.Context) (*Event, error) {
	if s.idx >= len(s.events) {
		if s.tail != nil {
			return nil, s.tail
		}
		return nil, io.EOF
	}
	ev := s.events[s.idx]
	s.idx++
	return ev, nil
}

func (s *scriptedSource) Close() error {
	s.closed = true
	return nil
}

// recordingSink merges fragments into a private graph, like a session would.
type recordingSink struct {
	mu     sync.Mutex
	graph  *graph.Graph
	merges int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{graph: &graph.Graph{}}
}

func (s *recordingSink) MergeFragment(fragment *graph.Graph) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.graph.Nodes) + len(s.graph.Relationships)
	s.graph = graph.Merge(s.graph, fragment)
	s.merges++
	return len(s.graph.Nodes)+len(s.graph.Relationships) > before
}

func (s *recordingSink) snapshot() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Copy()
}

// slowFetcher delays its answer so the fragment lands after the turn's
// terminal event has been read.
type slowFetcher struct {
	delay    time.Duration
	fragment *graph.Graph
}

func (f *slowFetcher) Neighborhood(ctx context.Context, nodeID string, depth, limit int) (*graph.Graph, error) {
	time.Sleep(f.delay)
	return f.fragment, nil
}

func toolResultGraphData(name, nodeID string) *Event {
	return &Event{
		Type: EventToolResult,
		Name: name,
		Output: map[string]interface{}{
			"graph_data": map[string]interface{}{
				"nodes": []interface{}{
					map[string]interface{}{"id": nodeID, "labels": []interface{}{"Customer"}},
				},
			},
		},
	}
}

func TestRunTurn_BasicToolTurn(t *testing.T) {
	source := &scriptedSource{events: []*Event{
		{Type: EventAgentContext, Context: &RunContext{Model: "m1", AvailableTools: []string{"query_graph"}}},
		{Type: EventText, Content: "Let me look that up."},
		{Type: EventToolUse, Name: "query_graph", Input: map[string]interface{}{"q": "x"}},
		toolResultGraphData("query_graph", "n1"),
		{Type: EventText, Content: "Found one customer."},
		{Type: EventDone},
	}}
	sink := newRecordingSink()
	orch := NewOrchestrator(sink, newTestExtractor(&stubFetcher{}), zap.NewNop())

	entry, err := orch.RunTurn(context.Background(), source)

	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.False(t, entry.Failed)
	assert.Equal(t, "Let me look that up.\n\nFound one customer.", entry.Content)
	assert.Equal(t, "m1", entry.Context.Model)
	require.Len(t, entry.ToolCalls, 1)
	assert.True(t, entry.ToolCalls[0].Resolved())

	// The fragment produced by the tool result is in the shared graph and on
	// the entry by the time RunTurn returns.
	merged := sink.snapshot()
	require.Len(t, merged.Nodes, 1)
	assert.Equal(t, "n1", merged.Nodes[0].ID)
	require.NotNil(t, entry.Fragment)
	assert.Equal(t, "n1", entry.Fragment.Nodes[0].ID)

	assert.Equal(t, TurnCompleted, orch.State())
	assert.True(t, source.closed)
}

func TestRunTurn_SameToolTwiceCorrelatesInOrder(t *testing.T) {
	source := &scriptedSource{events: []*Event{
		{Type: EventToolUse, Name: "search_nodes", Input: map[string]interface{}{"term": "alice"}},
		{Type: EventToolUse, Name: "search_nodes", Input: map[string]interface{}{"term": "bob"}},
		{Type: EventToolResult, Name: "search_nodes", Output: "alice-result"},
		{Type: EventToolResult, Name: "search_nodes", Output: "bob-result"},
		{Type: EventDone},
	}}
	sink := newRecordingSink()
	orch := NewOrchestrator(sink, newTestExtractor(&stubFetcher{}), zap.NewNop())

	entry, err := orch.RunTurn(context.Background(), source)

	require.NoError(t, err)
	require.Len(t, entry.ToolCalls, 2)
	assert.Equal(t, "alice", entry.ToolCalls[0].Input["term"])
	assert.Equal(t, "alice-result", entry.ToolCalls[0].Output)
	assert.Equal(t, "bob", entry.ToolCalls[1].Input["term"])
	assert.Equal(t, "bob-result", entry.ToolCalls[1].Output)
}

func TestRunTurn_OrphanedResultIgnored(t *testing.T) {
	source := &scriptedSource{events: []*Event{
		{Type: EventText, Content: "hello"},
		{Type: EventToolResult, Name: "never_called", Output: "ghost"},
		{Type: EventDone},
	}}
	sink := newRecordingSink()
	orch := NewOrchestrator(sink, newTestExtractor(&stubFetcher{}), zap.NewNop())

	entry, err := orch.RunTurn(context.Background(), source)

	require.NoError(t, err)
	assert.False(t, entry.Failed)
	assert.Empty(t, entry.ToolCalls)
	assert.Equal(t, 0, sink.merges)
}

func TestRunTurn_ErrorEventFailsTurnKeepingToolCalls(t *testing.T) {
	source := &scriptedSource{events: []*Event{
		{Type: EventText, Content: "partial answer"},
		{Type: EventToolUse, Name: "query_graph", Input: nil},
		toolResultGraphData("query_graph", "n1"),
		{Type: EventError, Message: "agent blew up"},
	}}
	sink := newRecordingSink()
	orch := NewOrchestrator(sink, newTestExtractor(&stubFetcher{}), zap.NewNop())

	entry, err := orch.RunTurn(context.Background(), source)

	// An error event is a clean protocol outcome, not a transport failure.
	require.NoError(t, err)
	assert.True(t, entry.Failed)
	assert.Equal(t, "agent blew up", entry.Content)
	assert.Len(t, entry.ToolCalls, 1)

	// Nothing already merged is rolled back.
	assert.Len(t, sink.snapshot().Nodes, 1)
	assert.Equal(t, TurnFailed, orch.State())
}

func TestRunTurn_ErrorEventWithoutMessageUsesFallback(t *testing.T) {
	source := &scriptedSource{events: []*Event{{Type: EventError}}}
	orch := NewOrchestrator(newRecordingSink(), newTestExtractor(&stubFetcher{}), zap.NewNop())

	entry, err := orch.RunTurn(context.Background(), source)

	require.NoError(t, err)
	assert.True(t, entry.Failed)
	assert.Equal(t, FailedTurnMessage, entry.Content)
}

func TestRunTurn_StreamEndWithoutTerminalEventIsTransportFailure(t *testing.T) {
	source := &scriptedSource{events: []*Event{
		{Type: EventText, Content: "half an ans"},
	}}
	orch := NewOrchestrator(newRecordingSink(), newTestExtractor(&stubFetcher{}), zap.NewNop())

	entry, err := orch.RunTurn(context.Background(), source)

	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, entry.Failed)
	assert.Equal(t, FailedTurnMessage, entry.Content)
	assert.Equal(t, TurnFailed, orch.State())
}

func TestRunTurn_TransportErrorFailsTurn(t *testing.T) {
	source := &scriptedSource{
		events: []*Event{{Type: EventText, Content: "..."}},
		tail:   errors.New("connection reset"),
	}
	orch := NewOrchestrator(newRecordingSink(), newTestExtractor(&stubFetcher{}), zap.NewNop())

	entry, err := orch.RunTurn(context.Background(), source)

	require.Error(t, err)
	assert.NotErrorIs(t, err, io.EOF)
	assert.True(t, entry.Failed)
}

func TestRunTurn_SlowExtractionLandsBeforeCompletion(t *testing.T) {
	fetcher := &slowFetcher{
		delay:    50 * time.Millisecond,
		fragment: &graph.Graph{Nodes: []graph.Node{{ID: "late-node"}}},
	}
	source := &scriptedSource{events: []*Event{
		{Type: EventToolUse, Name: "get_node", Input: map[string]interface{}{"node_id": "late-node"}},
		{Type: EventToolResult, Name: "get_node", Output: map[string]interface{}{"status": "ok"}},
		{Type: EventDone},
	}}
	sink := newRecordingSink()
	orch := NewOrchestrator(sink, NewExtractor(fetcher, 2, 50, 5, zap.NewNop()), zap.NewNop())

	entry, err := orch.RunTurn(context.Background(), source)

	// complete() waits for in-flight extractions, so the late fragment is
	// already merged when the entry is returned.
	require.NoError(t, err)
	require.NotNil(t, entry.Fragment)
	assert.Equal(t, "late-node", entry.Fragment.Nodes[0].ID)
	assert.Equal(t, "late-node", sink.snapshot().Nodes[0].ID)
}

func TestRunTurn_UnknownEventSkipped(t *testing.T) {
	source := &scriptedSource{events: []*Event{
		{Type: "heartbeat"},
		{Type: EventText, Content: "hi"},
		{Type: EventDone},
	}}
	orch := NewOrchestrator(newRecordingSink(), newTestExtractor(&stubFetcher{}), zap.NewNop())

	entry, err := orch.RunTurn(context.Background(), source)

	require.NoError(t, err)
	assert.Equal(t, "hi", entry.Content)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(`{"type":"tool_use","name":"query_graph","input":{"q":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventToolUse, ev.Type)
	assert.Equal(t, "query_graph", ev.Name)

	_, err = ParseEvent([]byte(`{"name":"no type"}`))
	assert.Error(t, err)

	_, err = ParseEvent([]byte(`not json`))
	assert.Error(t, err)
}
