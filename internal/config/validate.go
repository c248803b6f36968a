package config

import (
	"sort"

	"github.com/vane-widgets/vane/internal/expr"
)

// ReservedWindowArgs are filled in at open time and may be referenced by any
// window body without a matching defvar.
var ReservedWindowArgs = []string{"id", "screen"}

// validate checks cross-references over the assembled definition set.
// Variable references inside window bodies are deliberately not checked here:
// they may be satisfied by open-time window arguments, so the instantiator
// checks them once the argument set is known.
func validate(cfg *Config) error {
	if err := checkWidgets(cfg); err != nil {
		return err
	}
	if err := checkGates(cfg); err != nil {
		return err
	}
	return checkWidgetRecursion(cfg)
}

// checkWidgets walks every defwidget body: variable references must resolve
// to a parameter, a surrounding for-binding or a global variable, and calls
// of custom widgets must match the target's parameter list.
func checkWidgets(cfg *Config) error {
	for _, w := range sortedWidgets(cfg) {
		scope := make(map[string]bool)
		for _, p := range w.Params {
			scope[p.Name] = true
		}
		if err := checkUse(cfg, w.Body, scope); err != nil {
			return err
		}
	}
	for _, win := range cfg.Windows {
		if err := checkCalls(cfg, win.Body); err != nil {
			return err
		}
		if err := rejectChildrenSlot(win.Body); err != nil {
			return err
		}
	}
	return nil
}

func checkUse(cfg *Config, u Use, scope map[string]bool) error {
	switch x := u.(type) {
	case *BasicUse:
		if err := checkCallSite(cfg, x); err != nil {
			return err
		}
		for _, e := range x.Attrs {
			if err := checkRefs(cfg, e, scope); err != nil {
				return err
			}
		}
		for _, child := range x.Children {
			if err := checkUse(cfg, child, scope); err != nil {
				return err
			}
		}
	case *ForUse:
		if err := checkRefs(cfg, x.Source, scope); err != nil {
			return err
		}
		inner := make(map[string]bool, len(scope)+1)
		for k := range scope {
			inner[k] = true
		}
		inner[x.Var] = true
		return checkUse(cfg, x.Body, inner)
	case *ChildrenUse:
		if x.Nth != nil {
			return checkRefs(cfg, x.Nth, scope)
		}
	}
	return nil
}

func checkRefs(cfg *Config, e expr.Expr, scope map[string]bool) error {
	for _, name := range expr.VarRefs(e) {
		if scope[name] {
			continue
		}
		if _, ok := cfg.Vars[name]; ok {
			continue
		}
		return &ReferenceError{What: "variable", Name: name, Pos: e.Span()}
	}
	return nil
}

// checkCallSite verifies a custom widget invocation against its definition.
// Names with no definition are render primitives and take any attributes.
func checkCallSite(cfg *Config, u *BasicUse) error {
	def, ok := cfg.Widgets[u.Name]
	if !ok {
		return nil
	}
	params := make(map[string]Param, len(def.Params))
	for _, p := range def.Params {
		params[p.Name] = p
	}
	for key := range u.Attrs {
		if _, ok := params[key]; !ok {
			return formErrorf(u.Pos, "widget %q has no parameter %q", u.Name, key)
		}
	}
	for _, p := range def.Params {
		if p.Optional {
			continue
		}
		if _, ok := u.Attrs[p.Name]; !ok {
			return formErrorf(u.Pos, "widget %q requires parameter %q", u.Name, p.Name)
		}
	}
	return nil
}

// checkCalls validates call sites only, leaving variable references to the
// open-time check.
func checkCalls(cfg *Config, u Use) error {
	switch x := u.(type) {
	case *BasicUse:
		if err := checkCallSite(cfg, x); err != nil {
			return err
		}
		for _, child := range x.Children {
			if err := checkCalls(cfg, child); err != nil {
				return err
			}
		}
	case *ForUse:
		return checkCalls(cfg, x.Body)
	}
	return nil
}

func rejectChildrenSlot(u Use) error {
	switch x := u.(type) {
	case *BasicUse:
		for _, child := range x.Children {
			if err := rejectChildrenSlot(child); err != nil {
				return err
			}
		}
	case *ForUse:
		return rejectChildrenSlot(x.Body)
	case *ChildrenUse:
		return formErrorf(x.Pos, "(children) is only valid inside a defwidget body")
	}
	return nil
}

// checkGates verifies that every :run-while expression references only
// defined variables and that gates do not form a cycle, which would make the
// set of running pollers unsolvable.
func checkGates(cfg *Config) error {
	for _, v := range sortedVars(cfg) {
		if v.RunWhile == nil {
			continue
		}
		for _, name := range expr.VarRefs(v.RunWhile) {
			if _, ok := cfg.Vars[name]; !ok {
				return &ReferenceError{What: "variable", Name: name, Pos: v.RunWhile.Span()}
			}
		}
	}
	return detectCycle("gated variables", varNames(cfg), func(name string) []string {
		v := cfg.Vars[name]
		if v.RunWhile == nil {
			return nil
		}
		return expr.VarRefs(v.RunWhile)
	})
}

// checkWidgetRecursion rejects a widget that expands itself, directly or
// through other widgets. Expansion of such a tree would never terminate.
func checkWidgetRecursion(cfg *Config) error {
	names := make([]string, 0, len(cfg.Widgets))
	for name := range cfg.Widgets {
		names = append(names, name)
	}
	sort.Strings(names)
	return detectCycle("widgets", names, func(name string) []string {
		var out []string
		collectCustomUses(cfg, cfg.Widgets[name].Body, &out)
		return out
	})
}

func collectCustomUses(cfg *Config, u Use, out *[]string) {
	switch x := u.(type) {
	case *BasicUse:
		if _, ok := cfg.Widgets[x.Name]; ok {
			*out = append(*out, x.Name)
		}
		for _, child := range x.Children {
			collectCustomUses(cfg, child, out)
		}
	case *ForUse:
		collectCustomUses(cfg, x.Body, out)
	}
}

// detectCycle runs a colored DFS over the named nodes and returns a
// CycleError naming the offending chain.
func detectCycle(what string, names []string, edges func(string) []string) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var chain []string

	var visit func(string) bool
	visit = func(name string) bool {
		color[name] = gray
		chain = append(chain, name)
		for _, next := range edges(name) {
			switch color[next] {
			case gray:
				chain = append(chain, next)
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		chain = chain[:len(chain)-1]
		color[name] = black
		return false
	}

	for _, name := range names {
		if color[name] == white {
			if visit(name) {
				return &CycleError{What: what, Chain: chain}
			}
		}
	}
	return nil
}

func sortedVars(cfg *Config) []*Var {
	out := make([]*Var, 0, len(cfg.Vars))
	for _, v := range cfg.Vars {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func varNames(cfg *Config) []string {
	out := make([]string, 0, len(cfg.Vars))
	for name := range cfg.Vars {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sortedWidgets(cfg *Config) []*Widget {
	out := make([]*Widget, 0, len(cfg.Widgets))
	for _, w := range cfg.Widgets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
