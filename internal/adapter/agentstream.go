// Package adapter holds clients for the external services the engine talks
// to: the agent runtime's turn event stream and the LLM used for suggested
// questions.
package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"graphlens/internal/agent"
	"graphlens/pkg/logger"
)

// historyMessage is the wire shape of one conversation history entry.
type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// turnRequest is the wire shape of a turn submission.
type turnRequest struct {
	Message             string           `json:"message"`
	ConversationHistory []historyMessage `json:"conversation_history"`
}

// AgentStream opens turn event streams against the agent runtime. The runtime
// answers with newline-delimited JSON events (optionally SSE-framed with a
// `data:` prefix), terminated by a done or error event.
type AgentStream struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewAgentStream creates a client for the agent runtime at baseURL. The
// timeout covers one full turn stream.
func NewAgentStream(baseURL string, timeout time.Duration) *AgentStream {
	return &AgentStream{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger.Get(),
	}
}

// OpenTurn submits a message and returns the event source for the turn.
func (a *AgentStream) OpenTurn(ctx context.Context, message string, history []*agent.TranscriptEntry) (agent.EventSource, error) {
	reqBody := turnRequest{
		Message:             message,
		ConversationHistory: make([]historyMessage, 0, len(history)),
	}
	for _, entry := range history {
		reqBody.ConversationHistory = append(reqBody.ConversationHistory, historyMessage{
			Role:    string(entry.Role),
			Content: entry.Content,
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to encode turn request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat/stream", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build turn request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open turn stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("turn stream rejected: status %d", resp.StatusCode)
	}

	return &eventStream{
		body:    resp.Body,
		scanner: newEventScanner(resp.Body),
		logger:  a.logger,
	}, nil
}

// eventStream decodes one line-delimited event per Next call.
type eventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	logger  *zap.Logger
}

func newEventScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	// Tool results can embed whole subgraphs; give the scanner room.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return scanner
}

// Next returns the next event of the stream. Blank lines and SSE comment
// lines are skipped; `data:` prefixes are stripped so both NDJSON and SSE
// framings decode the same way.
func (s *eventStream) Next(ctx context.Context) (*agent.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}

		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if strings.HasPrefix(line, "data:") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if line == "" || line == "[DONE]" {
				continue
			}
		}

		ev, err := agent.ParseEvent([]byte(line))
		if err != nil {
			// One malformed line should not kill the turn.
			s.logger.Warn("Skipping malformed stream event", zap.Error(err))
			continue
		}
		return ev, nil
	}
}

// Close releases the underlying response body.
func (s *eventStream) Close() error {
	return s.body.Close()
}
