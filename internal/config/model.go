package config

import (
	"time"

	"github.com/vane-widgets/vane/internal/expr"
	"github.com/vane-widgets/vane/internal/span"
	"github.com/vane-widgets/vane/internal/value"
)

// VarKind distinguishes how a variable gets its values.
type VarKind uint8

const (
	// VarBasic holds a literal updated only through IPC.
	VarBasic VarKind = iota
	// VarPoll re-runs a command on an interval.
	VarPoll
	// VarListen streams lines from a long-lived command.
	VarListen
)

func (k VarKind) String() string {
	switch k {
	case VarPoll:
		return "poll"
	case VarListen:
		return "listen"
	}
	return "basic"
}

// Var is one variable definition.
type Var struct {
	Name    string
	Pos     span.Span
	Kind    VarKind
	Initial value.Value

	// Script variable fields; zero for VarBasic.
	Command  string
	Interval time.Duration // VarPoll only
	Timeout  time.Duration // VarPoll only, 0 means the daemon default
	RunWhile expr.Expr     // VarPoll only, nil means always
	OnChange string        // command run when the value changes
}

// IsScript reports whether the variable is backed by a command.
func (v *Var) IsScript() bool { return v.Kind != VarBasic }

// Param is one defwidget parameter. Optional params default to the empty
// string when the call site omits them.
type Param struct {
	Name     string
	Pos      span.Span
	Optional bool
}

// Widget is a defwidget template: named parameters and exactly one body node.
type Widget struct {
	Name   string
	Pos    span.Span
	Params []Param
	Body   Use
}

// Window is a defwindow declaration. Attrs it does not reserve pass through
// to the render surface untouched.
type Window struct {
	Name  string
	Pos   span.Span
	Attrs map[string]expr.Expr
	Body  Use
}

// Use is one node of a widget tree as written in configuration: a widget or
// primitive invocation, a for loop, or a children slot.
type Use interface {
	Span() span.Span
	use()
}

// BasicUse invokes a defined widget or a render primitive by name.
type BasicUse struct {
	Pos      span.Span
	Name     string
	Attrs    map[string]expr.Expr
	Children []Use
}

// ForUse repeats its body once per element of Source, binding Var.
type ForUse struct {
	Pos    span.Span
	Var    string
	Source expr.Expr
	Body   Use
}

// ChildrenUse marks where a widget's call-site children are spliced in.
// Nth selects a single child by index; nil splices all of them.
type ChildrenUse struct {
	Pos span.Span
	Nth expr.Expr
}

func (u *BasicUse) Span() span.Span    { return u.Pos }
func (u *ForUse) Span() span.Span      { return u.Pos }
func (u *ChildrenUse) Span() span.Span { return u.Pos }

func (u *BasicUse) use()    {}
func (u *ForUse) use()      {}
func (u *ChildrenUse) use() {}

// LiteralWidget is the primitive whose :content attribute is parsed and
// instantiated as a widget tree at runtime.
const LiteralWidget = "literal"

// Config is a complete validated definition set.
type Config struct {
	Vars    map[string]*Var
	Widgets map[string]*Widget
	Windows map[string]*Window
	// Files lists every file read, entry point first. The reload watcher
	// subscribes to these.
	Files []string
}
