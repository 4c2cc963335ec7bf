// Package runtimeerr defines the typed error taxonomy shared across the
// agent runtime, mirroring the per-package sentinel-error idiom used
// throughout the teacher packages (pkg/auth/errors.go, pkg/rag/errors.go).
package runtimeerr

import "errors"

// Kind classifies a runtime failure into the taxonomy of spec §7.
type Kind string

const (
	KindConfig         Kind = "config"
	KindParsing        Kind = "parsing"
	KindIO             Kind = "io"
	KindValidation     Kind = "validation"
	KindAuthDenied     Kind = "authorization_denied"
	KindAuthFailed     Kind = "authorization_failed"
	KindLLM            Kind = "llm"
	KindTool           Kind = "tool"
	KindExecutor       Kind = "executor"
	KindLoopDetection  Kind = "loop_detection"
	KindMaxSteps       Kind = "max_steps_reached"
	KindMCP            Kind = "mcp"
	KindRAG            Kind = "rag"
	KindInternal       Kind = "internal"
)

// Sentinel errors for errors.Is comparisons independent of message text.
var (
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrAuthorizationFailed = errors.New("authorization failed")
	ErrLoopDetection       = errors.New("loop detected")
	ErrMaxStepsReached     = errors.New("max steps reached")
	ErrValidation          = errors.New("validation failed")
)

// RunError is the structured error the engine and its collaborators return.
// It carries a Kind for programmatic branching and wraps the underlying
// cause for errors.Is/errors.As and %w formatting.
type RunError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *RunError) Unwrap() error { return e.Err }

// New builds a RunError of the given kind with the given message.
func New(kind Kind, message string) *RunError {
	return &RunError{Kind: kind, Message: message}
}

// Wrap builds a RunError of the given kind around an existing error.
func Wrap(kind Kind, message string, err error) *RunError {
	return &RunError{Kind: kind, Message: message, Err: err}
}

// Is lets errors.Is match against the sentinels above by kind.
func (e *RunError) Is(target error) bool {
	switch target {
	case ErrAuthorizationDenied:
		return e.Kind == KindAuthDenied
	case ErrAuthorizationFailed:
		return e.Kind == KindAuthFailed
	case ErrLoopDetection:
		return e.Kind == KindLoopDetection
	case ErrMaxStepsReached:
		return e.Kind == KindMaxSteps
	case ErrValidation:
		return e.Kind == KindValidation
	}
	return false
}
