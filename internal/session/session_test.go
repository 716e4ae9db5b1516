package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphlens/internal/agent"
	"graphlens/internal/graph"
	apperrors "graphlens/pkg/errors"
)

// fakeReader serves canned neighborhoods keyed by node id and counts fetches.
type fakeReader struct {
	mu            sync.Mutex
	neighborhoods map[string]*graph.Graph
	among         []graph.Relationship
	fetchErr      error
	amongErr      error
	fetches       map[string]int
	delay         time.Duration
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		neighborhoods: map[string]*graph.Graph{},
		fetches:       map[string]int{},
	}
}

func (r *fakeReader) Neighborhood(ctx context.Context, nodeID string, depth, limit int) (*graph.Graph, error) {
	r.mu.Lock()
	r.fetches[nodeID]++
	delay := r.delay
	r.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if r.fetchErr != nil {
		return nil, r.fetchErr
	}
	if g, ok := r.neighborhoods[nodeID]; ok {
		return g, nil
	}
	return &graph.Graph{}, nil
}

func (r *fakeReader) RelationshipsAmong(ctx context.Context, nodeIDs []string) ([]graph.Relationship, error) {
	if r.amongErr != nil {
		return nil, r.amongErr
	}
	return r.among, nil
}

func (r *fakeReader) fetchCount(nodeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches[nodeID]
}

// fakeOpener serves a scripted event stream per OpenTurn call.
type fakeOpener struct {
	mu      sync.Mutex
	scripts [][]*agent.Event
	opened  int
	err     error
	release chan struct{} // when set, the stream blocks before its last event
}

func (o *fakeOpener) OpenTurn(ctx context.Context, message string, history []*agent.TranscriptEntry) (agent.EventSource, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	var script []*agent.Event
	if o.opened < len(o.scripts) {
		script = o.scripts[o.opened]
	}
	o.opened++
	return &fakeStream{events: script, release: o.release}, nil
}

type fakeStream struct {
	events  []*agent.Event
	release chan struct{}
	idx     int
}

func (s *fakeStream) Next(ctx context.Context) (*agent.Event, error) {
	if s.release != nil && s.idx == len(s.events)-1 {
		<-s.release
	}
	if s.idx >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.idx]
	s.idx++
	return ev, nil
}

func (s *fakeStream) Close() error { return nil }

func testOptions() Options {
	return Options{ExpandDepth: 2, ExpandLimit: 50, ExtractDepth: 2, ExtractLimit: 50, ExtractIDCap: 5}
}

func doneScript(text string) []*agent.Event {
	return []*agent.Event{
		{Type: agent.EventText, Content: text},
		{Type: agent.EventDone},
	}
}

func TestSubmit_AppendsUserAndAssistantEntries(t *testing.T) {
	opener := &fakeOpener{scripts: [][]*agent.Event{doneScript("hello there")}}
	sess := New(newFakeReader(), opener, testOptions())
	defer sess.Close()

	entry, err := sess.Submit(context.Background(), "hi")

	require.NoError(t, err)
	assert.Equal(t, "hello there", entry.Content)

	history := sess.History()
	require.Len(t, history, 2)
	assert.Equal(t, agent.RoleUser, history[0].Role)
	assert.Equal(t, "hi", history[0].Content)
	assert.Equal(t, agent.RoleAssistant, history[1].Role)
}

func TestSubmit_RejectsWhileStreaming(t *testing.T) {
	release := make(chan struct{})
	opener := &fakeOpener{
		scripts: [][]*agent.Event{{
			{Type: agent.EventText, Content: "thinking..."},
			{Type: agent.EventDone},
		}},
		release: release,
	}
	sess := New(newFakeReader(), opener, testOptions())
	defer sess.Close()

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = sess.Submit(context.Background(), "first")
	}()

	// Wait for the first turn to be streaming, then try a second submission.
	require.Eventually(t, sess.Streaming, time.Second, 5*time.Millisecond)

	_, err := sess.Submit(context.Background(), "second")
	assert.Equal(t, apperrors.ErrTurnInFlight, err)

	close(release)
	<-firstDone
	assert.False(t, sess.Streaming())

	// After the first turn completes, submissions are accepted again.
	opener.mu.Lock()
	opener.scripts = append(opener.scripts, doneScript("ok"))
	opener.release = nil
	opener.mu.Unlock()
	_, err = sess.Submit(context.Background(), "third")
	assert.NoError(t, err)
}

func TestSubmit_FailedTurnStaysOnTranscript(t *testing.T) {
	opener := &fakeOpener{scripts: [][]*agent.Event{{
		{Type: agent.EventText, Content: "half"},
		// No terminal event: the stream dies.
	}}}
	sess := New(newFakeReader(), opener, testOptions())
	defer sess.Close()

	entry, err := sess.Submit(context.Background(), "hi")

	require.Error(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Failed)
	assert.Equal(t, agent.FailedTurnMessage, entry.Content)

	history := sess.History()
	require.Len(t, history, 2)
	assert.True(t, history[1].Failed)
}

func TestSubmit_EmptyMessageRejected(t *testing.T) {
	sess := New(newFakeReader(), &fakeOpener{}, testOptions())
	defer sess.Close()

	_, err := sess.Submit(context.Background(), "")
	assert.Error(t, err)
	assert.Empty(t, sess.History())
}

func TestSubmit_OpenerFailure(t *testing.T) {
	opener := &fakeOpener{err: errors.New("connection refused")}
	sess := New(newFakeReader(), opener, testOptions())
	defer sess.Close()

	entry, err := sess.Submit(context.Background(), "hi")

	assert.Nil(t, entry)
	require.Error(t, err)
	assert.True(t, apperrors.IsErrorType(err, apperrors.ErrorTypeTransport))
	assert.False(t, sess.Streaming())
}

func TestSubmit_ToolResultMergesIntoSessionGraph(t *testing.T) {
	opener := &fakeOpener{scripts: [][]*agent.Event{{
		{Type: agent.EventToolUse, Name: "query_graph", Input: map[string]interface{}{}},
		{Type: agent.EventToolResult, Name: "query_graph", Output: map[string]interface{}{
			"graph_data": map[string]interface{}{
				"nodes": []interface{}{
					map[string]interface{}{"id": "n1", "labels": []interface{}{"Customer"}},
				},
			},
		}},
		{Type: agent.EventDone},
	}}}
	sess := New(newFakeReader(), opener, testOptions())
	defer sess.Close()

	entry, err := sess.Submit(context.Background(), "show customers")

	require.NoError(t, err)
	require.NotNil(t, entry.Fragment)

	snapshot := sess.Snapshot()
	require.Len(t, snapshot.Nodes, 1)
	assert.Equal(t, "n1", snapshot.Nodes[0].ID)
}

func TestMergeFragment_ReportsChange(t *testing.T) {
	sess := New(newFakeReader(), &fakeOpener{}, testOptions())
	defer sess.Close()

	fragment := &graph.Graph{Nodes: []graph.Node{{ID: "a"}}}
	assert.True(t, sess.MergeFragment(fragment))
	assert.False(t, sess.MergeFragment(fragment), "re-merging the same fragment changes nothing")
	assert.False(t, sess.MergeFragment(&graph.Graph{}))
}

func TestMergeFragment_ClosedSessionIgnoresMerges(t *testing.T) {
	sess := New(newFakeReader(), &fakeOpener{}, testOptions())
	sess.Close()

	changed := sess.MergeFragment(&graph.Graph{Nodes: []graph.Node{{ID: "a"}}})

	assert.False(t, changed)
	assert.Empty(t, sess.Snapshot().Nodes)
}

func TestReplaceGraph_ClearsExpansionState(t *testing.T) {
	reader := newFakeReader()
	reader.neighborhoods["n1"] = &graph.Graph{Nodes: []graph.Node{{ID: "n1"}, {ID: "n2"}}}
	sess := New(reader, &fakeOpener{}, testOptions())
	defer sess.Close()

	require.NoError(t, sess.Expand(context.Background(), "n1"))
	require.True(t, sess.Expanded("n1"))

	sess.ReplaceGraph(&graph.Graph{Nodes: []graph.Node{{ID: "m1"}}})

	assert.False(t, sess.Expanded("n1"))
	snapshot := sess.Snapshot()
	require.Len(t, snapshot.Nodes, 1)
	assert.Equal(t, "m1", snapshot.Nodes[0].ID)
}

func TestListeners_GraphChangedFires(t *testing.T) {
	sess := New(newFakeReader(), &fakeOpener{}, testOptions())
	defer sess.Close()

	var mu sync.Mutex
	var sizes []int
	sess.SetListeners(Listeners{
		GraphChanged: func(g *graph.Graph) {
			mu.Lock()
			sizes = append(sizes, len(g.Nodes))
			mu.Unlock()
		},
	})

	sess.MergeFragment(&graph.Graph{Nodes: []graph.Node{{ID: "a"}}})
	sess.MergeFragment(&graph.Graph{Nodes: []graph.Node{{ID: "a"}}}) // no change, no callback

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1}, sizes)
}

func TestSnapshot_IsACopy(t *testing.T) {
	sess := New(newFakeReader(), &fakeOpener{}, testOptions())
	defer sess.Close()
	sess.MergeFragment(&graph.Graph{Nodes: []graph.Node{{ID: "a"}}})

	snapshot := sess.Snapshot()
	snapshot.Nodes[0].ID = "mutated"

	assert.Equal(t, "a", sess.Snapshot().Nodes[0].ID)
}

func TestInsight_ReflectsCurrentGraph(t *testing.T) {
	sess := New(newFakeReader(), &fakeOpener{}, testOptions())
	defer sess.Close()

	assert.Nil(t, sess.Insight())

	sess.MergeFragment(&graph.Graph{Nodes: []graph.Node{
		{ID: "a", Labels: []string{"Customer"}},
	}})

	insight := sess.Insight()
	require.NotNil(t, insight)
	assert.Equal(t, 1, insight.NodeCount)
}
