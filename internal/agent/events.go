package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// EventType tags one event of a turn stream.
type EventType string

const (
	EventAgentContext EventType = "agent_context"
	EventText         EventType = "text"
	EventToolUse      EventType = "tool_use"
	EventToolResult   EventType = "tool_result"
	EventDone         EventType = "done"
	EventError        EventType = "error"
)

// RunContext is the run metadata attached to a turn by the agent runtime:
// which model answered, which tools were available, and the effective system
// prompt. Display-only.
type RunContext struct {
	Model          string   `json:"model"`
	AvailableTools []string `json:"available_tools"`
	SystemPrompt   string   `json:"system_prompt"`
	MCPServer      string   `json:"mcp_server,omitempty"`
}

// Event is one tagged event of a turn stream. Which fields are set depends on
// Type; there is no invocation id on the wire, tool results carry only the
// tool name.
type Event struct {
	Type EventType `json:"type"`

	// text
	Content string `json:"content,omitempty"`

	// agent_context
	Context *RunContext `json:"context,omitempty"`

	// tool_use / tool_result
	Name   string                 `json:"name,omitempty"`
	Input  map[string]interface{} `json:"input,omitempty"`
	Output interface{}            `json:"output,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// ParseEvent decodes one JSON-encoded stream event.
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse stream event: %w", err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("stream event has no type")
	}
	return &ev, nil
}

// EventSource yields the ordered events of one agent turn. Next returns
// io.EOF when the stream ends; a stream that ends without a done or error
// event is a transport failure.
type EventSource interface {
	Next(ctx context.Context) (*Event, error)
	Close() error
}
