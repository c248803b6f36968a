package parse

import (
	"fmt"

	"github.com/vane-widgets/vane/internal/expr"
	"github.com/vane-widgets/vane/internal/span"
)

// Iter walks the items of a form in order, with typed accessors. It carries
// the enclosing span so "ran out of items" errors still point somewhere
// useful.
type Iter struct {
	pos   span.Span
	items []Node
	i     int
}

// NewIter returns an iterator over the items of a list or array form.
func NewIter(pos span.Span, items []Node) *Iter {
	return &Iter{pos: pos, items: items}
}

// Empty reports whether all items have been consumed.
func (it *Iter) Empty() bool { return it.i >= len(it.items) }

// Remaining returns the unconsumed items.
func (it *Iter) Remaining() []Node { return it.items[it.i:] }

// Peek returns the next item without consuming it.
func (it *Iter) Peek() (Node, bool) {
	if it.Empty() {
		return nil, false
	}
	return it.items[it.i], true
}

// Next consumes and returns the next item.
func (it *Iter) Next() (Node, bool) {
	n, ok := it.Peek()
	if ok {
		it.i++
	}
	return n, ok
}

func (it *Iter) exhausted(what string) *Error {
	return &Error{Pos: it.pos, Msg: fmt.Sprintf("expected %s, found end of form", what)}
}

// Symbol consumes the next item, which must be a bare symbol.
func (it *Iter) Symbol() (string, span.Span, error) {
	n, ok := it.Next()
	if !ok {
		return "", it.pos, it.exhausted("a symbol")
	}
	sym, ok := n.(*Symbol)
	if !ok {
		return "", n.Span(), &Error{Pos: n.Span(), Msg: fmt.Sprintf("expected a symbol, found %s `%s`", Describe(n), n)}
	}
	return sym.Name, sym.Pos, nil
}

// Array consumes the next item, which must be a bracketed array.
func (it *Iter) Array() (*Array, error) {
	n, ok := it.Next()
	if !ok {
		return nil, it.exhausted("an array")
	}
	arr, ok := n.(*Array)
	if !ok {
		return nil, &Error{Pos: n.Span(), Msg: fmt.Sprintf("expected an array, found %s `%s`", Describe(n), n)}
	}
	return arr, nil
}

// Expr consumes the next item and converts it to an expression.
func (it *Iter) Expr() (expr.Expr, error) {
	n, ok := it.Next()
	if !ok {
		return nil, it.exhausted("a value")
	}
	return ToExpr(n)
}

// Attr is one `:key value` pair.
type Attr struct {
	Key     string
	KeySpan span.Span
	Node    Node
}

// Attrs is the attribute set of a form, with lookup tracking so unexpected
// keys can be reported.
type Attrs struct {
	Pos  span.Span
	m    map[string]Attr
	used map[string]bool
}

// Attrs consumes the leading run of `:key value` pairs.
func (it *Iter) Attrs() (*Attrs, error) {
	out := &Attrs{Pos: it.pos, m: make(map[string]Attr), used: make(map[string]bool)}
	for {
		n, ok := it.Peek()
		if !ok {
			return out, nil
		}
		kw, ok := n.(*Keyword)
		if !ok {
			return out, nil
		}
		it.Next()
		val, ok := it.Next()
		if !ok {
			return nil, &Error{Pos: kw.Pos, Msg: fmt.Sprintf("attribute :%s has no value", kw.Name)}
		}
		if _, dup := out.m[kw.Name]; dup {
			return nil, &Error{Pos: kw.Pos, Msg: fmt.Sprintf("attribute :%s given twice", kw.Name)}
		}
		out.m[kw.Name] = Attr{Key: kw.Name, KeySpan: kw.Pos, Node: val}
	}
}

// Get looks up an attribute and marks it used.
func (a *Attrs) Get(key string) (Attr, bool) {
	attr, ok := a.m[key]
	if ok {
		a.used[key] = true
	}
	return attr, ok
}

// Expr returns the attribute's value as an expression, or nil when absent.
func (a *Attrs) Expr(key string) (expr.Expr, error) {
	attr, ok := a.Get(key)
	if !ok {
		return nil, nil
	}
	return ToExpr(attr.Node)
}

// RequiredExpr is Expr for attributes that must be present.
func (a *Attrs) RequiredExpr(key string) (expr.Expr, error) {
	attr, ok := a.Get(key)
	if !ok {
		return nil, &Error{Pos: a.Pos, Msg: fmt.Sprintf("missing required attribute :%s", key)}
	}
	return ToExpr(attr.Node)
}

// Rest returns the attributes never looked up, keyed by name. Forms with a
// fixed attribute set treat a non-empty rest as an error; defwindow passes
// them through to the renderer.
func (a *Attrs) Rest() map[string]Attr {
	out := make(map[string]Attr)
	for k, v := range a.m {
		if !a.used[k] {
			out[k] = v
		}
	}
	return out
}
