package graph

import (
	"fmt"
	"sort"

	"github.com/vane-widgets/vane/internal/expr"
	"github.com/vane-widgets/vane/internal/value"
)

// Handler receives re-evaluation results for one subscription. A nil error
// means v is the new value; a non-nil error is isolated to this subscription
// and does not affect any other.
type Handler func(v value.Value, err error)

type subscription struct {
	id      string
	owner   string
	expr    expr.Expr
	deps    []string
	handler Handler

	cached    value.Value
	hasCached bool
}

// Graph is the dependency index: variable name to the subscriptions that
// reference it.
type Graph struct {
	subs  map[string]*subscription
	byVar map[string]map[string]*subscription
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		subs:  make(map[string]*subscription),
		byVar: make(map[string]map[string]*subscription),
	}
}

// Subscribe registers an expression under a unique id and evaluates it once
// against lookup, returning the initial value. owner groups subscriptions for
// bulk removal when a widget generation is torn down. The handler fires only
// on later changes.
func (g *Graph) Subscribe(id, owner string, e expr.Expr, lookup expr.LookupFunc, h Handler) (value.Value, error) {
	if _, exists := g.subs[id]; exists {
		return value.Null(), fmt.Errorf("subscription id %q already registered", id)
	}
	sub := &subscription{id: id, owner: owner, expr: e, deps: expr.VarRefs(e), handler: h}
	g.subs[id] = sub
	for _, dep := range sub.deps {
		m, ok := g.byVar[dep]
		if !ok {
			m = make(map[string]*subscription)
			g.byVar[dep] = m
		}
		m[id] = sub
	}

	v, err := expr.Eval(e, lookup)
	if err != nil {
		g.Unsubscribe(id)
		return value.Null(), err
	}
	sub.cached = v
	sub.hasCached = true
	return v, nil
}

// Unsubscribe removes one subscription.
func (g *Graph) Unsubscribe(id string) {
	sub, ok := g.subs[id]
	if !ok {
		return
	}
	delete(g.subs, id)
	for _, dep := range sub.deps {
		if m := g.byVar[dep]; m != nil {
			delete(m, id)
			if len(m) == 0 {
				delete(g.byVar, dep)
			}
		}
	}
}

// DropOwner removes every subscription registered under owner.
func (g *Graph) DropOwner(owner string) {
	for id, sub := range g.subs {
		if sub.owner == owner {
			g.Unsubscribe(id)
		}
	}
}

// Changed re-evaluates every subscription depending on any of the given
// variables. A subscription touched through several variables still
// re-evaluates once. Handlers fire only when the result differs from the
// cached value; evaluation errors are delivered to the owning handler and
// leave the cache untouched.
func (g *Graph) Changed(vars []string, lookup expr.LookupFunc) {
	affected := make(map[string]*subscription)
	for _, name := range vars {
		for id, sub := range g.byVar[name] {
			affected[id] = sub
		}
	}
	// Deterministic order keeps patch streams reproducible.
	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sub := affected[id]
		// A handler earlier in this pass may have torn the subscription
		// down, for example when a loop region rebuilt its subtrees.
		if g.subs[id] != sub {
			continue
		}
		v, err := expr.Eval(sub.expr, lookup)
		if err != nil {
			sub.handler(value.Null(), err)
			continue
		}
		if sub.hasCached && value.Equal(sub.cached, v) {
			continue
		}
		sub.cached = v
		sub.hasCached = true
		sub.handler(v, nil)
	}
}

// InUse reports whether any subscription references the variable. The engine
// stops script processes for variables nothing listens to.
func (g *Graph) InUse(name string) bool {
	return len(g.byVar[name]) > 0
}

// UsedVars returns every variable referenced by at least one subscription.
func (g *Graph) UsedVars() []string {
	out := make([]string, 0, len(g.byVar))
	for name := range g.byVar {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of live subscriptions.
func (g *Graph) Size() int { return len(g.subs) }
