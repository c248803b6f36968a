package config

import (
	"fmt"

	"github.com/vane-widgets/vane/internal/span"
)

// DuplicateError reports two definitions claiming the same name.
type DuplicateError struct {
	What string
	Name string
	Pos  span.Span
	Prev span.Span
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q at %s already defined at %s", e.What, e.Name, e.Pos, e.Prev)
}

// ReferenceError reports use of an undefined name.
type ReferenceError struct {
	What string
	Name string
	Pos  span.Span
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("undefined %s %q referenced at %s", e.What, e.Name, e.Pos)
}

// CycleError reports a dependency cycle among definitions.
type CycleError struct {
	What  string
	Chain []string
}

func (e *CycleError) Error() string {
	out := "cycle among " + e.What + ":"
	for i, name := range e.Chain {
		if i > 0 {
			out += " ->"
		}
		out += " " + name
	}
	return out
}

// FormError reports a structurally invalid top-level form.
type FormError struct {
	Pos span.Span
	Msg string
}

func (e *FormError) Error() string {
	return fmt.Sprintf("invalid form at %s: %s", e.Pos, e.Msg)
}

func formErrorf(pos span.Span, format string, args ...any) *FormError {
	return &FormError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}
