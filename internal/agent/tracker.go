package agent

import (
	"sync"
)

// Invocation is one tool call made by the agent during a turn. It is created
// on a tool_use event, completed exactly once by the first matching
// tool_result, and kept on the transcript entry for later display.
type Invocation struct {
	Name  string                 `json:"name"`
	Input map[string]interface{} `json:"input"`

	// Output is nil until the invocation is resolved.
	Output   interface{} `json:"output,omitempty"`
	resolved bool
}

// Resolved reports whether a result has been attached.
func (inv *Invocation) Resolved() bool {
	return inv.resolved
}

// Tracker matches asynchronous tool results back to the invocation that
// produced them. The wire protocol carries no invocation id, so correlation
// is by name: a result resolves the earliest registered invocation with that
// exact name whose output is still unset. Sequential calls of the same tool
// therefore correlate in invocation order.
type Tracker struct {
	mu      sync.Mutex
	pending []*Invocation
}

// NewTracker creates an empty tracker for one turn.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Register records a tool invocation from a tool_use event.
func (t *Tracker) Register(name string, input map[string]interface{}) *Invocation {
	if input == nil {
		input = map[string]interface{}{}
	}
	inv := &Invocation{Name: name, Input: input}

	t.mu.Lock()
	t.pending = append(t.pending, inv)
	t.mu.Unlock()
	return inv
}

// Resolve attaches a result to the first unresolved invocation with the given
// name. Returns false when no invocation qualifies; such orphaned results are
// dropped by the caller, never fatal.
func (t *Tracker) Resolve(name string, output interface{}) (*Invocation, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, inv := range t.pending {
		if inv.Name == name && !inv.resolved {
			inv.Output = output
			inv.resolved = true
			return inv, true
		}
	}
	return nil, false
}

// Pending returns how many registered invocations are still unresolved.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := 0
	for _, inv := range t.pending {
		if !inv.resolved {
			count++
		}
	}
	return count
}
