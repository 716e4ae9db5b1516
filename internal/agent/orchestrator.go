package agent

import (
	"context"
	"errors"
	"io"
	"sync"

	"go.uber.org/zap"

	"graphlens/internal/graph"
)

// TurnState is the lifecycle of one turn.
type TurnState string

const (
	TurnIdle      TurnState = "idle"
	TurnStreaming TurnState = "streaming"
	TurnCompleted TurnState = "completed"
	TurnFailed    TurnState = "failed"
)

// FailedTurnMessage is shown when a turn dies without a terminal event.
const FailedTurnMessage = "Something went wrong while processing your request. Please try again."

// ErrStreamEnded is returned by event sources when the stream is exhausted.
var ErrStreamEnded = io.EOF

// GraphSink receives extracted fragments. The implementation must merge into
// its CURRENT graph value at call time; fragments from slow fetches can land
// after later stream events have already merged their own.
type GraphSink interface {
	MergeFragment(fragment *graph.Graph) bool
}

// Orchestrator consumes the ordered event stream of a single turn: it
// registers tool invocations, correlates their results, hands resolved
// outputs to the extractor, and pushes fragments into the shared graph while
// the transcript entry accumulates. One orchestrator serves one turn.
type Orchestrator struct {
	tracker   *Tracker
	extractor *Extractor
	sink      GraphSink
	logger    *zap.Logger

	mu       sync.Mutex
	entry    *TranscriptEntry
	fragment *graph.Graph
	state    TurnState
	wg       sync.WaitGroup
}

// NewOrchestrator creates an orchestrator for one turn.
func NewOrchestrator(sink GraphSink, extractor *Extractor, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		tracker:   NewTracker(),
		extractor: extractor,
		sink:      sink,
		logger:    logger,
		state:     TurnIdle,
	}
}

// State returns the turn state.
func (o *Orchestrator) State() TurnState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RunTurn consumes the event source until a terminal event or transport
// failure and returns the finalized assistant entry. The entry is returned
// even when the turn fails; its content then carries the user-visible error
// and previously accumulated text and tool calls stay on it.
func (o *Orchestrator) RunTurn(ctx context.Context, source EventSource) (*TranscriptEntry, error) {
	defer source.Close()

	o.mu.Lock()
	o.entry = newAssistantEntry()
	o.fragment = &graph.Graph{}
	o.state = TurnStreaming
	o.mu.Unlock()

	for {
		ev, err := source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Stream ended without done/error: a transport failure, not a
				// silent hang.
				return o.fail(FailedTurnMessage), ErrStreamEnded
			}
			o.logger.Warn("Turn stream transport failure", zap.Error(err))
			return o.fail(FailedTurnMessage), err
		}

		switch ev.Type {
		case EventAgentContext:
			o.mu.Lock()
			o.entry.Context = ev.Context
			o.mu.Unlock()

		case EventText:
			o.appendText(ev.Content)

		case EventToolUse:
			inv := o.tracker.Register(ev.Name, ev.Input)
			o.mu.Lock()
			o.entry.ToolCalls = append(o.entry.ToolCalls, inv)
			o.mu.Unlock()
			o.logger.Debug("Tool invocation registered", zap.String("tool", ev.Name))

		case EventToolResult:
			o.handleToolResult(ctx, ev)

		case EventDone:
			return o.complete(), nil

		case EventError:
			msg := ev.Message
			if msg == "" {
				msg = FailedTurnMessage
			}
			return o.fail(msg), nil

		default:
			o.logger.Debug("Skipping unknown stream event", zap.String("type", string(ev.Type)))
		}
	}
}

// handleToolResult correlates a result and extracts its fragment. Extraction
// may hit the network, so it runs off the event loop; the sink merges against
// the live shared graph whenever the fetch resolves.
func (o *Orchestrator) handleToolResult(ctx context.Context, ev *Event) {
	inv, ok := o.tracker.Resolve(ev.Name, ev.Output)
	if !ok {
		// Orphaned result: reported, not fatal.
		o.logger.Warn("Dropping orphaned tool result", zap.String("tool", ev.Name))
		return
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		fragment, err := o.extractor.Extract(ctx, inv)
		if err != nil {
			// Extraction failure degrades this one result to graph-less.
			o.logger.Warn("Graph extraction failed",
				zap.String("tool", inv.Name),
				zap.Error(err),
			)
			return
		}
		if fragment.IsEmpty() {
			return
		}

		changed := o.sink.MergeFragment(fragment)
		o.mu.Lock()
		o.fragment = graph.Merge(o.fragment, fragment)
		o.mu.Unlock()
		o.logger.Debug("Merged tool result fragment",
			zap.String("tool", inv.Name),
			zap.Int("nodes", len(fragment.Nodes)),
			zap.Bool("changed", changed),
		)
	}()
}

func (o *Orchestrator) appendText(content string) {
	if content == "" {
		return
	}
	o.mu.Lock()
	if o.entry.Content != "" {
		o.entry.Content += "\n\n"
	}
	o.entry.Content += content
	o.mu.Unlock()
}

// complete waits for in-flight extractions, then freezes the entry.
func (o *Orchestrator) complete() *TranscriptEntry {
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = TurnCompleted
	if !o.fragment.IsEmpty() {
		o.entry.Fragment = o.fragment
	}
	return o.entry
}

// fail freezes the entry with a user-visible error message. Accumulated text
// and tool calls are kept; nothing already merged is rolled back.
func (o *Orchestrator) fail(message string) *TranscriptEntry {
	o.wg.Wait()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = TurnFailed
	o.entry.Failed = true
	o.entry.Content = message
	if !o.fragment.IsEmpty() {
		o.entry.Fragment = o.fragment
	}
	return o.entry
}
