// Package parse reads configuration source into S-expression trees.
// The reader produces plain nodes; meaning is assigned by the config package.
// Embedded `{...}` blocks and quoted strings are handed to the expr parser,
// so expression spans point into the enclosing configuration file.
package parse

import (
	"fmt"
	"strings"

	"github.com/vane-widgets/vane/internal/expr"
	"github.com/vane-widgets/vane/internal/span"
)

// Node is one S-expression tree node.
type Node interface {
	Span() span.Span
	fmt.Stringer
}

// List is a parenthesized form: `(defvar x "1")`.
type List struct {
	Pos   span.Span
	Items []Node
}

// Array is a bracketed form, used for widget parameter lists.
type Array struct {
	Pos   span.Span
	Items []Node
}

// Symbol is a bare word: a form head, a widget name, a parameter name.
type Symbol struct {
	Pos  span.Span
	Name string
}

// Keyword is a `:name` attribute key.
type Keyword struct {
	Pos  span.Span
	Name string
}

// ExprNode wraps an embedded expression: a `{...}` block, a quoted string
// (with or without interpolation) or a bare number.
type ExprNode struct {
	Pos  span.Span
	Expr expr.Expr
}

func (n *List) Span() span.Span     { return n.Pos }
func (n *Array) Span() span.Span    { return n.Pos }
func (n *Symbol) Span() span.Span   { return n.Pos }
func (n *Keyword) Span() span.Span  { return n.Pos }
func (n *ExprNode) Span() span.Span { return n.Pos }

func joinNodes(items []Node, sep string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = it.String()
	}
	return strings.Join(parts, sep)
}

func (n *List) String() string     { return "(" + joinNodes(n.Items, " ") + ")" }
func (n *Array) String() string    { return "[" + joinNodes(n.Items, " ") + "]" }
func (n *Symbol) String() string   { return n.Name }
func (n *Keyword) String() string  { return ":" + n.Name }
func (n *ExprNode) String() string { return "{" + n.Expr.String() + "}" }

// Describe names the node kind for error messages.
func Describe(n Node) string {
	switch n.(type) {
	case *List:
		return "list"
	case *Array:
		return "array"
	case *Symbol:
		return "symbol"
	case *Keyword:
		return "keyword"
	case *ExprNode:
		return "expression"
	}
	return "node"
}

// ToExpr converts a value-position node into an expression. A bare symbol is
// a variable reference, so `:text title` reads the same as `:text {title}`.
func ToExpr(n Node) (expr.Expr, error) {
	switch x := n.(type) {
	case *ExprNode:
		return x.Expr, nil
	case *Symbol:
		return &expr.VarRef{Pos: x.Pos, Name: x.Name}, nil
	case *Array:
		elems := make([]expr.Expr, len(x.Items))
		for i, it := range x.Items {
			e, err := ToExpr(it)
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return &expr.ArrayLit{Pos: x.Pos, Elems: elems}, nil
	}
	return nil, &Error{Pos: n.Span(), Msg: fmt.Sprintf("expected a value, found %s `%s`", Describe(n), n)}
}
