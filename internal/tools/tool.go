package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/crm-tools/internal/database"
	"github.com/benvon/crm-tools/internal/security"
)

var (
	// ErrUnknownTool is returned when no tool is registered under a name.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTool is returned when a name is registered twice.
	ErrDuplicateTool = errors.New("duplicate tool")
)

// DefaultListLimit is used by list tools when the caller omits limit.
const DefaultListLimit = 50

// Handler executes a tool. args have already passed schema validation and normalisation.
type Handler func(ctx context.Context, env *Env, args Args) (any, error)

// Tool is a named operation with a JSON schema describing its arguments.
type Tool struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description" yaml:"description"`
	InputSchema map[string]any `json:"inputSchema" yaml:"inputSchema"`
	Handler     Handler        `json:"-" yaml:"-"`
}

// Env carries the collaborators a handler may use.
type Env struct {
	DB      database.Querier
	MaxRows int
	Now     func() time.Time
}

func (e *Env) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}

func (e *Env) today() string {
	return e.now().Format(dateLayout)
}

func (e *Env) maxRows() int {
	if e.MaxRows <= 0 {
		return security.DefaultMaxQueryRows
	}
	return e.MaxRows
}

// Content is one block of a tool result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Result is the envelope returned to callers.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// TextResult serializes v as indented JSON into a single text block.
func TextResult(v any) (*Result, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &Result{Content: []Content{{Type: "text", Text: string(data)}}}, nil
}

// ErrorResult wraps a client-facing error message in the envelope.
func ErrorResult(message string) *Result {
	data, _ := json.Marshal(map[string]string{"error": message})
	return &Result{Content: []Content{{Type: "text", Text: string(data)}}, IsError: true}
}

func notFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

func invalid(field, format string, args ...any) error {
	return &security.ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
