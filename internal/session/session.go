// Package session owns the shared merged graph and the conversation state of
// one visualization context. All graph mutation goes through the session, so
// every merge operates on the latest value no matter when the producing fetch
// was started.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"graphlens/internal/agent"
	"graphlens/internal/graph"
	apperrors "graphlens/pkg/errors"
	"graphlens/pkg/logger"
)

// GraphReader is the graph-read collaborator used for expansion and initial
// snapshots.
type GraphReader interface {
	Neighborhood(ctx context.Context, nodeID string, depth, limit int) (*graph.Graph, error)
	RelationshipsAmong(ctx context.Context, nodeIDs []string) ([]graph.Relationship, error)
}

// TurnOpener opens the event stream for one agent turn.
type TurnOpener interface {
	OpenTurn(ctx context.Context, message string, history []*agent.TranscriptEntry) (agent.EventSource, error)
}

// Listeners are the callbacks the UI layer registers on a session. All are
// optional.
type Listeners struct {
	GraphChanged func(g *graph.Graph)
	TurnState    func(state agent.TurnState)
	Expansion    func(nodeID string, inFlight bool)
}

// Options configures a session.
type Options struct {
	ExpandDepth  int
	ExpandLimit  int
	ExtractDepth int
	ExtractLimit int
	ExtractIDCap int
}

// Session is the exclusively-owned state of one chat/visualization context:
// the merged graph, the transcript, the expansion state, and the turn gate.
type Session struct {
	ID string

	reader    GraphReader
	opener    TurnOpener
	extractor *agent.Extractor
	opts      Options
	logger    *zap.Logger

	mu        sync.Mutex
	listeners Listeners
	graph     *graph.Graph
	history   []*agent.TranscriptEntry
	expanded  map[string]struct{}
	streaming bool
	closed    bool

	expandGroup singleflight.Group
}

// New creates an empty session.
func New(reader GraphReader, opener TurnOpener, opts Options) *Session {
	s := &Session{
		ID:       uuid.New().String(),
		reader:   reader,
		opener:   opener,
		opts:     opts,
		logger:   logger.Get(),
		graph:    &graph.Graph{},
		expanded: map[string]struct{}{},
	}
	s.extractor = agent.NewExtractor(reader, opts.ExtractDepth, opts.ExtractLimit, opts.ExtractIDCap, s.logger)
	return s
}

// SetListeners registers the UI callbacks. Typically called once, right after
// the serving layer is constructed.
func (s *Session) SetListeners(l Listeners) {
	s.mu.Lock()
	s.listeners = l
	s.mu.Unlock()
}

// Close stops the session from applying further updates. In-flight fetches
// complete quietly; their merges become no-ops.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Snapshot returns a read-only copy of the merged graph for rendering.
func (s *Session) Snapshot() *graph.Graph {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Copy()
}

// Insight summarizes the current graph. Nil when nothing countable.
func (s *Session) Insight() *graph.Insight {
	s.mu.Lock()
	g := s.graph
	s.mu.Unlock()
	return graph.Summarize(g)
}

// History returns the transcript in order.
func (s *Session) History() []*agent.TranscriptEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*agent.TranscriptEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Streaming reports whether a turn is currently in flight.
func (s *Session) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Expanded reports whether a node has already been expanded.
func (s *Session) Expanded(nodeID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.expanded[nodeID]
	return ok
}

// ExpandedIDs returns the set of expanded node ids, for the render
// projection.
func (s *Session) ExpandedIDs() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.expanded))
	for id := range s.expanded {
		out[id] = true
	}
	return out
}

// MergeFragment merges a fragment into the live graph. It implements
// agent.GraphSink: callers holding stale snapshots cannot bypass the current
// value because the merge happens under the session lock. Returns whether the
// graph gained any element.
func (s *Session) MergeFragment(fragment *graph.Graph) bool {
	if fragment.IsEmpty() {
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	before := len(s.graph.Nodes) + len(s.graph.Relationships)
	s.graph = graph.Merge(s.graph, fragment)
	after := len(s.graph.Nodes) + len(s.graph.Relationships)
	changed := after > before
	snapshot := s.graph.Copy()
	s.mu.Unlock()

	if changed {
		s.notifyGraphChanged(snapshot)
	}
	return changed
}

// ReplaceGraph swaps in a new base graph, superseding whatever was visible.
// Expansion state is cleared: it described nodes of the old graph.
func (s *Session) ReplaceGraph(g *graph.Graph) {
	if g == nil {
		g = &graph.Graph{}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.graph = g.Copy()
	s.expanded = map[string]struct{}{}
	snapshot := s.graph.Copy()
	s.mu.Unlock()

	s.notifyGraphChanged(snapshot)
}

// Submit runs one agent turn for the given user message. Submissions while a
// turn is streaming are rejected, not queued. Returns the finalized assistant
// entry; on a failed turn the entry carries the user-visible error and the
// returned error describes the failure.
func (s *Session) Submit(ctx context.Context, message string) (*agent.TranscriptEntry, error) {
	if message == "" {
		return nil, apperrors.NewBaseError(apperrors.ErrorTypeTransport, "empty message", nil)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, apperrors.NewBaseError(apperrors.ErrorTypeTransport, "session closed", nil)
	}
	if s.streaming {
		s.mu.Unlock()
		return nil, apperrors.ErrTurnInFlight
	}
	s.streaming = true
	historyCopy := make([]*agent.TranscriptEntry, len(s.history))
	copy(historyCopy, s.history)
	s.mu.Unlock()
	s.notifyTurnState(agent.TurnStreaming)

	defer func() {
		s.mu.Lock()
		s.streaming = false
		s.mu.Unlock()
		s.notifyTurnState(agent.TurnIdle)
	}()

	source, err := s.opener.OpenTurn(ctx, message, historyCopy)
	if err != nil {
		return nil, apperrors.NewAgentUnreachable("agent turn stream", err)
	}

	orch := agent.NewOrchestrator(s, s.extractor, s.logger)
	entry, runErr := orch.RunTurn(ctx, source)

	userEntry := agent.NewUserEntry(message)
	s.mu.Lock()
	if !s.closed {
		s.history = append(s.history, userEntry, entry)
	}
	s.mu.Unlock()

	if runErr != nil {
		s.logger.Warn("Turn failed",
			zap.String("session_id", s.ID),
			zap.Error(runErr),
		)
		return entry, apperrors.NewBaseError(apperrors.ErrorTypeTransport, "turn failed", runErr)
	}
	return entry, nil
}

func (s *Session) notifyGraphChanged(snapshot *graph.Graph) {
	s.mu.Lock()
	fn := s.listeners.GraphChanged
	s.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

func (s *Session) notifyTurnState(state agent.TurnState) {
	s.mu.Lock()
	fn := s.listeners.TurnState
	s.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (s *Session) notifyExpansion(nodeID string, inFlight bool) {
	s.mu.Lock()
	fn := s.listeners.Expansion
	s.mu.Unlock()
	if fn != nil {
		fn(nodeID, inFlight)
	}
}
