// Package expr implements the embedded expression language: a hand-written
// lexer, a Pratt parser and an evaluator over the JSON-like value model.
// Expressions appear inside `{...}` blocks and `${...}` string interpolation
// in configuration source, and are the unit the dependency graph subscribes
// on: every parsed expression knows the set of variable names it references.
package expr

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vane-widgets/vane/internal/span"
	"github.com/vane-widgets/vane/internal/value"
)

// Expr is the closed set of expression AST nodes. An Expr is immutable once
// parsed; evaluation never mutates it.
type Expr interface {
	Span() span.Span
	// collectRefs adds every variable name referenced (transitively) to set.
	collectRefs(set map[string]struct{})
	fmt.Stringer
}

// BinaryOp enumerates the binary operators.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNeq
	OpAnd
	OpOr
	OpGT
	OpLT
	OpGE
	OpLE
	OpElvis
	OpRegexMatch
)

var binaryOpNames = map[BinaryOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpMod: "%",
	OpEq: "==", OpNeq: "!=", OpAnd: "&&", OpOr: "||",
	OpGT: ">", OpLT: "<", OpGE: ">=", OpLE: "<=",
	OpElvis: "?:", OpRegexMatch: "=~",
}

func (op BinaryOp) String() string { return binaryOpNames[op] }

// UnaryOp enumerates the prefix operators.
type UnaryOp uint8

const (
	OpNot UnaryOp = iota
	OpNegate
)

func (op UnaryOp) String() string {
	if op == OpNot {
		return "!"
	}
	return "-"
}

// Literal is a constant value.
type Literal struct {
	Pos span.Span
	Val value.Value
}

// VarRef references a variable by name.
type VarRef struct {
	Pos  span.Span
	Name string
}

// Binary applies a binary operator.
type Binary struct {
	Pos  span.Span
	Op   BinaryOp
	L, R Expr
}

// Unary applies a prefix operator.
type Unary struct {
	Pos span.Span
	Op  UnaryOp
	X   Expr
}

// Ternary is `cond ? then : else`; only the taken branch is evaluated.
type Ternary struct {
	Pos              span.Span
	Cond, Then, Else Expr
}

// Access indexes into a container: `x.field`, `x[i]`, `x?.field`, `x?.[i]`.
// A string receiver is re-parsed as JSON before indexing.
type Access struct {
	Pos   span.Span
	Safe  bool
	X     Expr
	Index Expr
}

// Call invokes a builtin function.
type Call struct {
	Pos  span.Span
	Name string
	Args []Expr
}

// Interp is a string literal with embedded `${...}` parts; evaluation
// re-stringifies each part and concatenates.
type Interp struct {
	Pos   span.Span
	Parts []Expr
}

// ArrayLit is a `[a, b, c]` literal.
type ArrayLit struct {
	Pos   span.Span
	Elems []Expr
}

// ObjectEntry is one `key: value` pair of an ObjectLit.
type ObjectEntry struct {
	Key Expr
	Val Expr
}

// ObjectLit is a `{key: value, ...}` literal.
type ObjectLit struct {
	Pos     span.Span
	Entries []ObjectEntry
}

func (e *Literal) Span() span.Span   { return e.Pos }
func (e *VarRef) Span() span.Span    { return e.Pos }
func (e *Binary) Span() span.Span    { return e.Pos }
func (e *Unary) Span() span.Span     { return e.Pos }
func (e *Ternary) Span() span.Span   { return e.Pos }
func (e *Access) Span() span.Span    { return e.Pos }
func (e *Call) Span() span.Span      { return e.Pos }
func (e *Interp) Span() span.Span    { return e.Pos }
func (e *ArrayLit) Span() span.Span  { return e.Pos }
func (e *ObjectLit) Span() span.Span { return e.Pos }

func (e *Literal) collectRefs(map[string]struct{}) {}

func (e *VarRef) collectRefs(set map[string]struct{}) { set[e.Name] = struct{}{} }

func (e *Binary) collectRefs(set map[string]struct{}) {
	e.L.collectRefs(set)
	e.R.collectRefs(set)
}

func (e *Unary) collectRefs(set map[string]struct{}) { e.X.collectRefs(set) }

func (e *Ternary) collectRefs(set map[string]struct{}) {
	e.Cond.collectRefs(set)
	e.Then.collectRefs(set)
	e.Else.collectRefs(set)
}

func (e *Access) collectRefs(set map[string]struct{}) {
	e.X.collectRefs(set)
	e.Index.collectRefs(set)
}

func (e *Call) collectRefs(set map[string]struct{}) {
	for _, a := range e.Args {
		a.collectRefs(set)
	}
}

func (e *Interp) collectRefs(set map[string]struct{}) {
	for _, p := range e.Parts {
		p.collectRefs(set)
	}
}

func (e *ArrayLit) collectRefs(set map[string]struct{}) {
	for _, el := range e.Elems {
		el.collectRefs(set)
	}
}

func (e *ObjectLit) collectRefs(set map[string]struct{}) {
	for _, en := range e.Entries {
		en.Key.collectRefs(set)
		en.Val.collectRefs(set)
	}
}

// VarRefs returns the sorted set of variable names the expression references,
// transitively. This set is the expression's dependency key.
func VarRefs(e Expr) []string {
	set := make(map[string]struct{})
	e.collectRefs(set)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// References reports whether the expression references the given variable.
func References(e Expr, name string) bool {
	set := make(map[string]struct{})
	e.collectRefs(set)
	_, ok := set[name]
	return ok
}

// Substitute returns a copy of the expression with every VarRef whose name
// appears in binding replaced by the bound expression. Used to expand widget
// parameter references with their call-site arguments, so that dependency
// tracking flows through to the underlying variables.
func Substitute(e Expr, binding map[string]Expr) Expr {
	if len(binding) == 0 {
		return e
	}
	switch x := e.(type) {
	case *Literal:
		return x
	case *VarRef:
		if repl, ok := binding[x.Name]; ok {
			return repl
		}
		return x
	case *Binary:
		return &Binary{Pos: x.Pos, Op: x.Op, L: Substitute(x.L, binding), R: Substitute(x.R, binding)}
	case *Unary:
		return &Unary{Pos: x.Pos, Op: x.Op, X: Substitute(x.X, binding)}
	case *Ternary:
		return &Ternary{
			Pos:  x.Pos,
			Cond: Substitute(x.Cond, binding),
			Then: Substitute(x.Then, binding),
			Else: Substitute(x.Else, binding),
		}
	case *Access:
		return &Access{Pos: x.Pos, Safe: x.Safe, X: Substitute(x.X, binding), Index: Substitute(x.Index, binding)}
	case *Call:
		args := make([]Expr, len(x.Args))
		for i, a := range x.Args {
			args[i] = Substitute(a, binding)
		}
		return &Call{Pos: x.Pos, Name: x.Name, Args: args}
	case *Interp:
		parts := make([]Expr, len(x.Parts))
		for i, p := range x.Parts {
			parts[i] = Substitute(p, binding)
		}
		return &Interp{Pos: x.Pos, Parts: parts}
	case *ArrayLit:
		elems := make([]Expr, len(x.Elems))
		for i, el := range x.Elems {
			elems[i] = Substitute(el, binding)
		}
		return &ArrayLit{Pos: x.Pos, Elems: elems}
	case *ObjectLit:
		entries := make([]ObjectEntry, len(x.Entries))
		for i, en := range x.Entries {
			entries[i] = ObjectEntry{Key: Substitute(en.Key, binding), Val: Substitute(en.Val, binding)}
		}
		return &ObjectLit{Pos: x.Pos, Entries: entries}
	}
	return e
}

// NewLiteral wraps a Value as a literal expression.
func NewLiteral(pos span.Span, v value.Value) *Literal {
	return &Literal{Pos: pos, Val: v}
}

func (e *Literal) String() string {
	if e.Val.Kind() == value.KindString {
		return fmt.Sprintf("%q", e.Val.String())
	}
	return e.Val.String()
}

func (e *VarRef) String() string  { return e.Name }
func (e *Binary) String() string  { return fmt.Sprintf("(%s %s %s)", e.L, e.Op, e.R) }
func (e *Unary) String() string   { return fmt.Sprintf("%s%s", e.Op, e.X) }
func (e *Ternary) String() string { return fmt.Sprintf("(%s ? %s : %s)", e.Cond, e.Then, e.Else) }

func (e *Access) String() string {
	if e.Safe {
		return fmt.Sprintf("%s?.[%s]", e.X, e.Index)
	}
	return fmt.Sprintf("%s[%s]", e.X, e.Index)
}

func (e *Call) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}

func (e *Interp) String() string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, p := range e.Parts {
		if lit, ok := p.(*Literal); ok && lit.Val.Kind() == value.KindString {
			sb.WriteString(lit.Val.String())
		} else {
			fmt.Fprintf(&sb, "${%s}", p)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}

func (e *ArrayLit) String() string {
	elems := make([]string, len(e.Elems))
	for i, el := range e.Elems {
		elems[i] = el.String()
	}
	return "[" + strings.Join(elems, ", ") + "]"
}

func (e *ObjectLit) String() string {
	entries := make([]string, len(e.Entries))
	for i, en := range e.Entries {
		entries[i] = fmt.Sprintf("%s: %s", en.Key, en.Val)
	}
	return "{" + strings.Join(entries, ", ") + "}"
}
