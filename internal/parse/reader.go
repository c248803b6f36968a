package parse

import (
	"fmt"
	"strconv"

	"github.com/vane-widgets/vane/internal/expr"
	"github.com/vane-widgets/vane/internal/span"
	"github.com/vane-widgets/vane/internal/value"
)

// Error reports malformed S-expression source.
type Error struct {
	Pos span.Span
	Msg string
}

func (e *Error) Error() string {
	if e.Pos.IsZero() {
		return fmt.Sprintf("parse error: %s", e.Msg)
	}
	return fmt.Sprintf("parse error at %s: %s", e.Pos, e.Msg)
}

// Read parses src into its top-level forms. Every top-level node of a
// configuration file must be a list; that check belongs to the config layer,
// the reader returns whatever forms the file holds.
func Read(file, src string) ([]Node, error) {
	r := &reader{file: file, src: src}
	var nodes []Node
	for {
		r.skipBlank()
		if r.pos >= len(r.src) {
			return nodes, nil
		}
		n, err := r.readNode()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
}

type reader struct {
	file string
	src  string
	pos  int
}

func (r *reader) spanFrom(start int) span.Span {
	return span.New(r.file, start, r.pos)
}

func (r *reader) errAt(start int, format string, args ...any) *Error {
	return &Error{Pos: r.spanFrom(start), Msg: fmt.Sprintf(format, args...)}
}

// skipBlank advances past whitespace and `;` line comments.
func (r *reader) skipBlank() {
	for r.pos < len(r.src) {
		switch r.src[r.pos] {
		case ' ', '\t', '\n', '\r':
			r.pos++
		case ';':
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.pos++
			}
		default:
			return
		}
	}
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '(', ')', '[', ']', '{', '}', '"', '\'', ';':
		return true
	}
	return false
}

func (r *reader) readNode() (Node, error) {
	start := r.pos
	c := r.src[r.pos]
	switch c {
	case '(':
		return r.readSeq(')')
	case '[':
		return r.readSeq(']')
	case ')', ']', '}':
		r.pos++
		return nil, r.errAt(start, "unexpected `%s`", string(c))
	case '{':
		return r.readExprBlock()
	case '"', '\'':
		return r.readString(c)
	case ':':
		r.pos++
		sym := r.readBareWord()
		if sym == "" {
			return nil, r.errAt(start, "expected keyword name after `:`")
		}
		return &Keyword{Pos: r.spanFrom(start), Name: sym}, nil
	}

	word := r.readBareWord()
	if word == "" {
		r.pos++
		return nil, r.errAt(start, "unexpected character %q", string(c))
	}
	if word == "true" || word == "false" {
		pos := r.spanFrom(start)
		return &ExprNode{Pos: pos, Expr: expr.NewLiteral(pos, value.Bool(word == "true"))}, nil
	}
	if c >= '0' && c <= '9' || (c == '-' && len(word) > 1 && word[1] >= '0' && word[1] <= '9') {
		f, err := strconv.ParseFloat(word, 64)
		if err != nil {
			return nil, r.errAt(start, "malformed number %q", word)
		}
		pos := r.spanFrom(start)
		return &ExprNode{Pos: pos, Expr: expr.NewLiteral(pos, value.Number(f))}, nil
	}
	return &Symbol{Pos: r.spanFrom(start), Name: word}, nil
}

func (r *reader) readBareWord() string {
	start := r.pos
	for r.pos < len(r.src) && !isDelimiter(r.src[r.pos]) {
		r.pos++
	}
	return r.src[start:r.pos]
}

func (r *reader) readSeq(close byte) (Node, error) {
	start := r.pos
	r.pos++ // opening bracket
	var items []Node
	for {
		r.skipBlank()
		if r.pos >= len(r.src) {
			return nil, r.errAt(start, "unclosed `%s`", string(r.src[start]))
		}
		if r.src[r.pos] == close {
			r.pos++
			pos := r.spanFrom(start)
			if close == ')' {
				return &List{Pos: pos, Items: items}, nil
			}
			return &Array{Pos: pos, Items: items}, nil
		}
		n, err := r.readNode()
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
}

// readExprBlock consumes a `{...}` block and parses its content as an
// expression. Braces nest and quoted strings inside are skipped, so object
// literals and interpolations work inside blocks.
func (r *reader) readExprBlock() (Node, error) {
	start := r.pos
	r.pos++
	depth := 0
	for r.pos < len(r.src) {
		switch r.src[r.pos] {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				content := r.src[start+1 : r.pos]
				r.pos++
				e, err := expr.Parse(r.file, start+1, content)
				if err != nil {
					return nil, err
				}
				return &ExprNode{Pos: r.spanFrom(start), Expr: e}, nil
			}
			depth--
		case '"', '\'':
			quote := r.src[r.pos]
			r.pos++
			for r.pos < len(r.src) && r.src[r.pos] != quote {
				if r.src[r.pos] == '\\' {
					r.pos++
				}
				r.pos++
			}
		}
		r.pos++
	}
	return nil, r.errAt(start, "unclosed `{` expression block")
}

func (r *reader) readString(quote byte) (Node, error) {
	start := r.pos
	r.pos++
	content := r.pos
	for r.pos < len(r.src) {
		switch r.src[r.pos] {
		case '\\':
			r.pos += 2
		case quote:
			raw := r.src[content:r.pos]
			r.pos++
			e, err := expr.ParseQuoted(r.file, content, raw)
			if err != nil {
				return nil, err
			}
			return &ExprNode{Pos: r.spanFrom(start), Expr: e}, nil
		default:
			r.pos++
		}
	}
	return nil, r.errAt(start, "unterminated string")
}
