// Package span provides source positions for configuration and expression
// text. Spans are byte-offset ranges into a named source file and are
// attached to every parsed node and every load-time error.
package span

import (
	"fmt"
	"strings"
)

// Span is a half-open byte range [Start, End) inside the source file File.
type Span struct {
	File  string
	Start int
	End   int
}

// New returns a span covering [start, end) in file.
func New(file string, start, end int) Span {
	return Span{File: file, Start: start, End: end}
}

// To returns the smallest span covering both s and other.
func (s Span) To(other Span) Span {
	out := s
	if other.Start < out.Start {
		out.Start = other.Start
	}
	if other.End > out.End {
		out.End = other.End
	}
	return out
}

// IsZero reports whether the span carries no position information.
func (s Span) IsZero() bool {
	return s.File == "" && s.Start == 0 && s.End == 0
}

func (s Span) String() string {
	if s.File == "" {
		return fmt.Sprintf("%d..%d", s.Start, s.End)
	}
	return fmt.Sprintf("%s:%d..%d", s.File, s.Start, s.End)
}

// Location resolves the span's start offset against the source text it was
// produced from and returns a human readable "file:line:col" string.
func (s Span) Location(src string) string {
	offset := s.Start
	if offset > len(src) {
		offset = len(src)
	}
	line := 1 + strings.Count(src[:offset], "\n")
	col := offset - strings.LastIndex(src[:offset], "\n")
	if s.File == "" {
		return fmt.Sprintf("%d:%d", line, col)
	}
	return fmt.Sprintf("%s:%d:%d", s.File, line, col)
}
