package expr

import (
	"fmt"

	"github.com/vane-widgets/vane/internal/span"
)

// ParseError reports malformed expression text.
type ParseError struct {
	Pos span.Span
	Msg string
}

func (e *ParseError) Error() string {
	if e.Pos.IsZero() {
		return fmt.Sprintf("parse error: %s", e.Msg)
	}
	return fmt.Sprintf("parse error at %s: %s", e.Pos, e.Msg)
}

// EvalError reports a type or reference failure while evaluating a
// syntactically valid expression.
type EvalError struct {
	Pos  span.Span
	Msg  string
	Wrap error
}

func (e *EvalError) Error() string {
	if e.Pos.IsZero() {
		return fmt.Sprintf("eval error: %s", e.Msg)
	}
	return fmt.Sprintf("eval error at %s: %s", e.Pos, e.Msg)
}

func (e *EvalError) Unwrap() error { return e.Wrap }

func evalErrorf(pos span.Span, format string, args ...any) *EvalError {
	return &EvalError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

// UnknownVariableError is returned when an expression references a variable
// the store does not hold. Callers distinguish it from type errors to decide
// whether a definition is missing or merely mistyped.
type UnknownVariableError struct {
	Pos  span.Span
	Name string
}

func (e *UnknownVariableError) Error() string {
	return fmt.Sprintf("unknown variable %q referenced at %s", e.Name, e.Pos)
}
