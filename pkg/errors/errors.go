package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeTransport represents agent stream transport errors
	ErrorTypeTransport ErrorType = "transport"
	// ErrorTypeCorrelation represents tool result correlation errors
	ErrorTypeCorrelation ErrorType = "correlation"
	// ErrorTypeExtraction represents graph extraction errors
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeExpansion represents node expansion errors
	ErrorTypeExpansion ErrorType = "expansion"
	// ErrorTypeGraph represents graph database errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// Category returns the error category. Promoted through every typed error
// that embeds BaseError.
func (e *BaseError) Category() ErrorType {
	return e.Type
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Transport errors

// ErrStreamInterrupted is returned when the turn stream ends without a terminal event
var ErrStreamInterrupted = NewBaseError(ErrorTypeTransport, "turn stream ended before a terminal event", nil)

// ErrTurnInFlight is returned when a submission arrives while a turn is streaming
var ErrTurnInFlight = NewBaseError(ErrorTypeTransport, "a turn is already streaming", nil)

// ErrAgentUnreachable is returned when the agent runtime cannot be reached
type ErrAgentUnreachable struct {
	*BaseError
	URL string
}

func NewAgentUnreachable(url string, err error) *ErrAgentUnreachable {
	return &ErrAgentUnreachable{
		BaseError: NewBaseError(ErrorTypeTransport, fmt.Sprintf("agent runtime unreachable: %s", url), err),
		URL:       url,
	}
}

// Correlation errors

// ErrOrphanedResult is returned when a tool result matches no pending invocation.
// Non-fatal: the orchestrator logs and drops the result.
type ErrOrphanedResult struct {
	*BaseError
	ToolName string
}

func NewOrphanedResult(toolName string) *ErrOrphanedResult {
	return &ErrOrphanedResult{
		BaseError: NewBaseError(ErrorTypeCorrelation, fmt.Sprintf("no pending invocation for tool: %s", toolName), nil),
		ToolName:  toolName,
	}
}

// Extraction errors

// ErrExtractionFailed is returned when a tool payload cannot yield a graph fragment.
// The tool result is treated as graph-less and the turn continues.
type ErrExtractionFailed struct {
	*BaseError
	ToolName string
}

func NewExtractionFailed(toolName string, err error) *ErrExtractionFailed {
	return &ErrExtractionFailed{
		BaseError: NewBaseError(ErrorTypeExtraction, fmt.Sprintf("failed to extract graph from tool: %s", toolName), err),
		ToolName:  toolName,
	}
}

// Expansion errors

// ErrAlreadyExpanded is returned when a node has already been expanded
type ErrAlreadyExpanded struct {
	*BaseError
	NodeID string
}

func NewAlreadyExpanded(nodeID string) *ErrAlreadyExpanded {
	return &ErrAlreadyExpanded{
		BaseError: NewBaseError(ErrorTypeExpansion, fmt.Sprintf("node already expanded: %s", nodeID), nil),
		NodeID:    nodeID,
	}
}

// ErrExpansionFetchFailed is returned when the neighborhood fetch for an expansion fails.
// The node stays unexpanded so the user can retry.
type ErrExpansionFetchFailed struct {
	*BaseError
	NodeID string
}

func NewExpansionFetchFailed(nodeID string, err error) *ErrExpansionFetchFailed {
	return &ErrExpansionFetchFailed{
		BaseError: NewBaseError(ErrorTypeExpansion, fmt.Sprintf("expansion fetch failed for node: %s", nodeID), err),
		NodeID:    nodeID,
	}
}

// Graph errors

// ErrGraphConnectionFailed is returned when the Neo4j connection fails
type ErrGraphConnectionFailed struct {
	*BaseError
	URI string
}

func NewGraphConnectionFailed(uri string, err error) *ErrGraphConnectionFailed {
	return &ErrGraphConnectionFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("failed to connect to Neo4j: %s", uri), err),
		URI:       uri,
	}
}

// ErrGraphQueryFailed is returned when a graph query fails
type ErrGraphQueryFailed struct {
	*BaseError
	Query string
}

func NewGraphQueryFailed(query string, err error) *ErrGraphQueryFailed {
	return &ErrGraphQueryFailed{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("query failed: %s", query), err),
		Query:     query,
	}
}

// Config errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type. Typed errors embed
// *BaseError, so the check walks the chain looking for the category.
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if categorized, ok := err.(interface{ Category() ErrorType }); ok {
			return categorized.Category() == errType
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsFatalToTurn reports whether an error should fail the whole turn.
// Correlation, extraction, and expansion failures are contained to the
// single tool result or expansion that caused them.
func IsFatalToTurn(err error) bool {
	switch {
	case IsErrorType(err, ErrorTypeCorrelation),
		IsErrorType(err, ErrorTypeExtraction),
		IsErrorType(err, ErrorTypeExpansion):
		return false
	}
	return true
}
