package agent

import (
	"time"

	"github.com/google/uuid"

	"graphlens/internal/graph"
)

// Role distinguishes user and assistant transcript entries.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TranscriptEntry is one turn of the conversation. Assistant entries
// accumulate text, tool invocations, and the graph fragment actually synced
// to the shared graph while the turn streams; they are not touched again
// after the terminal event.
type TranscriptEntry struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Failed    bool          `json:"failed,omitempty"`
	Context   *RunContext   `json:"context,omitempty"`
	ToolCalls []*Invocation `json:"toolCalls,omitempty"`
	Fragment  *graph.Graph  `json:"fragment,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// NewUserEntry creates the transcript entry for a user submission.
func NewUserEntry(content string) *TranscriptEntry {
	return &TranscriptEntry{
		ID:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// newAssistantEntry creates the in-progress entry for the assistant's turn.
func newAssistantEntry() *TranscriptEntry {
	return &TranscriptEntry{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
}
