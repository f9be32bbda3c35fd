// Package faults defines the error taxonomy shared by the capture and
// analysis pipeline. Every error carries a Kind so callers can branch with
// errors.Is against the exported sentinels.
package faults

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an error for propagation decisions.
type Kind string

const (
	KindConfiguration Kind = "configuration"  // bad component id, missing paths; fatal
	KindState         Kind = "state"          // illegal capture state transition
	KindShapeMismatch Kind = "shape_mismatch" // heterogeneous shapes; recoverable
	KindInference     Kind = "inference"      // one example's forward pass failed
	KindPersistence   Kind = "persistence"    // reading or writing a capture run
)

// Sentinels for errors.Is.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrState         = &Error{Kind: KindState}
	ErrShapeMismatch = &Error{Kind: KindShapeMismatch}
	ErrInference     = &Error{Kind: KindInference}
	ErrPersistence   = &Error{Kind: KindPersistence}
)

// Error is the structured error used across the module.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Context map[string]string
	Cause   error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	if e.Op != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Op)
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(k)
			sb.WriteString("=")
			sb.WriteString(e.Context[k])
		}
		sb.WriteString("]")
	}
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// With attaches a context key/value and returns e for chaining.
func (e *Error) With(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// Wrap sets the underlying cause and returns e for chaining.
func (e *Error) Wrap(cause error) *Error {
	e.Cause = cause
	return e
}

func newError(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func Configuration(op, format string, args ...interface{}) *Error {
	return newError(KindConfiguration, op, format, args...)
}

func State(op, format string, args ...interface{}) *Error {
	return newError(KindState, op, format, args...)
}

func ShapeMismatch(op, format string, args ...interface{}) *Error {
	return newError(KindShapeMismatch, op, format, args...)
}

func Inference(op, format string, args ...interface{}) *Error {
	return newError(KindInference, op, format, args...)
}

func Persistence(op, format string, args ...interface{}) *Error {
	return newError(KindPersistence, op, format, args...)
}
