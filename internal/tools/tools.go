// Package tools provides the tool registry the agent acts through: typed
// descriptors with JSON-schema parameters, validated execution with
// per-tool deadlines, and a result cache for read-only tools.
package tools

import (
	"context"
	"time"
)

// Error kinds reported in ExecutionResult.ErrorKind.
const (
	ErrKindNotFound      = "not_found"
	ErrKindInvalidParams = "invalid_params"
	ErrKindExecution     = "execution_error"
	ErrKindTimeout       = "timeout"
)

// Handler executes a tool call. Data must be JSON-serializable.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// ParameterSchema defines tool parameters (JSON Schema format).
type ParameterSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property defines a single parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Enum        []any  `json:"enum,omitempty"`
}

// Descriptor describes a registered tool.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Params      ParameterSchema `json:"parameters"`
	Category    string          `json:"category,omitempty"`
	Tags        []string        `json:"tags,omitempty"`

	// Terminal marks a tool whose success ends the reasoning loop.
	Terminal bool `json:"terminal,omitempty"`

	// Timeout bounds a single execution. Zero means DefaultTimeout.
	Timeout time.Duration `json:"-"`

	Handler Handler `json:"-"`
}

// ExecutionResult is the outcome of one tool call. A failed call is a value,
// not a Go error: the loop observes failures and reasons about them.
type ExecutionResult struct {
	Tool      string        `json:"tool"`
	OK        bool          `json:"ok"`
	Data      any           `json:"data,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Duration  time.Duration `json:"duration"`
	Cached    bool          `json:"cached,omitempty"`
}

// Failed builds a failure result.
func Failed(tool, kind, msg string) *ExecutionResult {
	return &ExecutionResult{Tool: tool, OK: false, Error: msg, ErrorKind: kind}
}

// Executor is the execution surface the agent loop depends on.
type Executor interface {
	// Execute runs the named tool. It always returns a result; transport-level
	// failure is the only error case.
	Execute(ctx context.Context, name string, args map[string]any) *ExecutionResult

	// Get retrieves a descriptor by name.
	Get(name string) (Descriptor, bool)

	// List returns all descriptors sorted by name.
	List() []Descriptor
}
