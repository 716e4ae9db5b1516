// Package suggest generates starter questions for the chat input based on
// the current graph schema. Best-effort: any failure falls back to a fixed
// default list.
package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"graphlens/pkg/logger"
)

// DefaultQuestions is the fallback when the model is unavailable or returns
// something unparseable.
var DefaultQuestions = []string{
	"What are the core nodes in the current graph?",
	"How are the node labels and relationship types distributed?",
	"Which nodes have the most connections?",
}

const maxQuestions = 3
const maxQuestionLength = 80

// SchemaSummarizer provides the schema summary the prompt is grounded on.
type SchemaSummarizer interface {
	SchemaSummary(ctx context.Context) (string, error)
}

// Service asks an OpenAI-compatible model for suggested questions.
type Service struct {
	client *openai.Client
	model  string
	schema SchemaSummarizer
	logger *zap.Logger
}

// NewService creates a suggestion service. baseURL points at any
// OpenAI-compatible endpoint; a dummy key is used when none is configured.
func NewService(baseURL, apiKey, model string, schema SchemaSummarizer) *Service {
	if apiKey == "" {
		apiKey = "dummy-key"
	}
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"

	return &Service{
		client: openai.NewClientWithConfig(config),
		model:  model,
		schema: schema,
		logger: logger.Get(),
	}
}

// Suggestions returns up to three suggested questions. Never returns an
// error; failures keep the defaults.
func (s *Service) Suggestions(ctx context.Context) []string {
	summary, err := s.schema.SchemaSummary(ctx)
	if err != nil || summary == "" {
		s.logger.Debug("Schema summary unavailable for suggestions", zap.Error(err))
		return DefaultQuestions
	}

	prompt := fmt.Sprintf(`You are helping a user explore a knowledge graph. Based on the schema below, propose 3 short questions the user could ask about the data. Answer with a JSON array of 3 strings and nothing else.

%s`, summary)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		s.logger.Debug("Suggestion generation failed", zap.Error(err))
		return DefaultQuestions
	}
	if len(resp.Choices) == 0 {
		return DefaultQuestions
	}

	questions := parseQuestions(resp.Choices[0].Message.Content)
	if questions == nil {
		return DefaultQuestions
	}
	return questions
}

var fencedArrayPattern = regexp.MustCompile("```(?:json)?\\s*(\\[[\\s\\S]*?\\])\\s*```")
var bareArrayPattern = regexp.MustCompile(`\[[\s\S]*?\]`)

// parseQuestions extracts a JSON string array from model output, tolerating
// markdown fences and surrounding prose.
func parseQuestions(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if qs := decodeQuestionArray(text); qs != nil {
		return qs
	}
	if m := fencedArrayPattern.FindStringSubmatch(text); m != nil {
		if qs := decodeQuestionArray(m[1]); qs != nil {
			return qs
		}
	}
	if m := bareArrayPattern.FindString(text); m != "" {
		if qs := decodeQuestionArray(m); qs != nil {
			return qs
		}
	}
	return nil
}

func decodeQuestionArray(text string) []string {
	var raw []interface{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil
	}
	if len(raw) == 0 {
		return nil
	}

	out := make([]string, 0, maxQuestions)
	for _, item := range raw {
		if len(out) >= maxQuestions {
			break
		}
		s, ok := item.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		if len(s) > maxQuestionLength {
			s = s[:maxQuestionLength]
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
