// Package widget turns widget templates into live render trees. Custom
// widgets expand by substituting parameter references with their call-site
// expressions, so dependency tracking always reaches the underlying
// variables. Every dynamic subtree (a window, each for-loop element set,
// each literal body) belongs to a generation; tearing a generation down
// removes all of its subscriptions at once.
package widget

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/expr"
	"github.com/vane-widgets/vane/internal/graph"
	"github.com/vane-widgets/vane/internal/render"
	"github.com/vane-widgets/vane/internal/span"
	"github.com/vane-widgets/vane/internal/value"
)

// InstantiationError reports a widget tree that cannot be built.
type InstantiationError struct {
	Pos span.Span
	Msg string
	Err error
}

func (e *InstantiationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("instantiating widget at %s: %s: %v", e.Pos, e.Msg, e.Err)
	}
	return fmt.Sprintf("instantiating widget at %s: %s", e.Pos, e.Msg)
}

func (e *InstantiationError) Unwrap() error { return e.Err }

func instErrorf(pos span.Span, err error, format string, args ...any) *InstantiationError {
	return &InstantiationError{Pos: pos, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Builder instantiates windows against the current definition set.
type Builder struct {
	// Widgets are the defwidget templates by name.
	Widgets map[string]*config.Widget
	// Graph receives one subscription per bound expression.
	Graph *graph.Graph
	// Lookup resolves variables, normally backed by the store.
	Lookup expr.LookupFunc
	// EmitPatches receives patches for an open instance. Called from
	// subscription handlers, which run on the reactive core goroutine.
	EmitPatches func(instance string, patches []render.Patch)
	// ReportError receives isolated runtime evaluation errors.
	ReportError func(err error)
}

// Instance is one open window's live tree and bookkeeping.
type Instance struct {
	ID     string
	Window string
	Spec   *render.WindowSpec

	b       *Builder
	rootGen string
	nodeSeq int
	subSeq  int
	// genChildren records generation nesting so teardown of an outer
	// generation reaches subscriptions created under inner ones.
	genChildren map[string][]string
	// segments lists each container node's children as static nodes and
	// dynamic regions, in order.
	segments map[string][]*segment
}

// segment is a run of children under one parent: one static node, or a
// dynamic region whose node set changes at runtime.
type segment struct {
	nodes  []*render.Node
	region bool
	gens   []string
}

func (s *segment) ids() []string {
	out := make([]string, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.ID
	}
	return out
}

// buildCtx is the lexical context of one point in the expansion: the
// generation owning new subscriptions, the parameter substitution in effect
// and the call-site children available to (children) slots.
type buildCtx struct {
	gen   string
	subst map[string]expr.Expr
	slot  []slotEntry
}

type slotEntry struct {
	use config.Use
	ctx buildCtx
}

// Instantiate builds the window body into a render tree, registering a
// subscription for every bound expression. args are the open-time window
// arguments; they shadow global variables inside this window's body.
func (b *Builder) Instantiate(win *config.Window, instanceID, screen string, args map[string]value.Value) (*Instance, error) {
	inst := &Instance{
		ID:          instanceID,
		Window:      win.Name,
		b:           b,
		rootGen:     uuid.NewString(),
		genChildren: make(map[string][]string),
		segments:    make(map[string][]*segment),
	}
	subst := make(map[string]expr.Expr, len(args)+2)
	for name, v := range args {
		subst[name] = expr.NewLiteral(span.Span{}, v)
	}
	// The reserved window arguments are always in scope.
	subst["id"] = expr.NewLiteral(span.Span{}, value.String(instanceID))
	subst["screen"] = expr.NewLiteral(span.Span{}, value.String(screen))
	ctx := buildCtx{gen: inst.rootGen, subst: subst}

	attrs, err := inst.windowAttrs(win, ctx)
	if err != nil {
		inst.Teardown()
		return nil, err
	}
	segs, err := inst.buildSegments(nil, win.Body, ctx)
	if err != nil {
		inst.Teardown()
		return nil, err
	}
	nodes := flatten(segs)
	if len(nodes) != 1 {
		inst.Teardown()
		return nil, instErrorf(win.Body.Span(), nil, "window %q body must produce exactly one root widget, got %d", win.Name, len(nodes))
	}

	inst.Spec = &render.WindowSpec{
		Instance: instanceID,
		Window:   win.Name,
		Screen:   screen,
		Attrs:    attrs,
		Root:     nodes[0],
	}
	return inst, nil
}

// Teardown drops every subscription the instance owns.
func (inst *Instance) Teardown() {
	inst.dropGen(inst.rootGen)
}

func (inst *Instance) dropGen(gen string) {
	for _, child := range inst.genChildren[gen] {
		inst.dropGen(child)
	}
	delete(inst.genChildren, gen)
	inst.b.Graph.DropOwner(gen)
}

func (inst *Instance) newGen(parent string) string {
	id := uuid.NewString()
	inst.genChildren[parent] = append(inst.genChildren[parent], id)
	return id
}

func (inst *Instance) unlinkGen(parent, gen string) {
	kids := inst.genChildren[parent]
	for i, k := range kids {
		if k == gen {
			inst.genChildren[parent] = append(kids[:i], kids[i+1:]...)
			return
		}
	}
}

func (inst *Instance) nextNodeID() string {
	inst.nodeSeq++
	return fmt.Sprintf("n%d", inst.nodeSeq)
}

func (inst *Instance) nextSubID(kind string) string {
	inst.subSeq++
	return fmt.Sprintf("%s:%s%d", inst.ID, kind, inst.subSeq)
}

// windowAttrs evaluates the defwindow attributes once at open time.
func (inst *Instance) windowAttrs(win *config.Window, ctx buildCtx) (map[string]value.Value, error) {
	if len(win.Attrs) == 0 {
		return nil, nil
	}
	out := make(map[string]value.Value, len(win.Attrs))
	for key, e := range win.Attrs {
		v, err := expr.Eval(expr.Substitute(e, ctx.subst), inst.b.Lookup)
		if err != nil {
			return nil, instErrorf(e.Span(), err, "window attribute :%s", key)
		}
		out[key] = v
	}
	return out, nil
}

// buildSegments expands one configuration node into child segments of
// parent. Custom widgets expand in place, so a template body's top-level
// nodes become segments of the caller's parent. parent is nil only at the
// window root, where dynamic constructs are rejected.
func (inst *Instance) buildSegments(parent *render.Node, u config.Use, ctx buildCtx) ([]*segment, error) {
	switch x := u.(type) {
	case *config.BasicUse:
		if def, ok := inst.b.Widgets[x.Name]; ok {
			return inst.buildCustom(parent, x, def, ctx)
		}
		var n *render.Node
		var err error
		if x.Name == config.LiteralWidget {
			n, err = inst.buildLiteral(x, ctx)
		} else {
			n, err = inst.buildPrimitive(x, ctx)
		}
		if err != nil {
			return nil, err
		}
		return []*segment{{nodes: []*render.Node{n}}}, nil
	case *config.ForUse:
		if parent == nil {
			return nil, instErrorf(x.Pos, nil, "a for loop cannot be the window root")
		}
		seg := &segment{region: true}
		if err := inst.initForRegion(parent, seg, x, ctx); err != nil {
			return nil, err
		}
		return []*segment{seg}, nil
	case *config.ChildrenUse:
		return inst.buildSlot(parent, x, ctx)
	}
	return nil, instErrorf(u.Span(), nil, "unsupported widget node %T", u)
}

// buildCustom expands a defwidget call by substituting its parameters with
// the call-site expressions and building the template body in place.
func (inst *Instance) buildCustom(parent *render.Node, use *config.BasicUse, def *config.Widget, ctx buildCtx) ([]*segment, error) {
	binding := make(map[string]expr.Expr, len(def.Params))
	for _, p := range def.Params {
		if arg, ok := use.Attrs[p.Name]; ok {
			binding[p.Name] = expr.Substitute(arg, ctx.subst)
			continue
		}
		if !p.Optional {
			return nil, instErrorf(use.Pos, nil, "widget %q requires parameter %q", def.Name, p.Name)
		}
		binding[p.Name] = expr.NewLiteral(p.Pos, value.String(""))
	}
	bodyCtx := buildCtx{
		gen:   ctx.gen,
		subst: binding,
		slot:  make([]slotEntry, 0, len(use.Children)),
	}
	for _, child := range use.Children {
		bodyCtx.slot = append(bodyCtx.slot, slotEntry{use: child, ctx: ctx})
	}
	return inst.buildSegments(parent, def.Body, bodyCtx)
}

// buildPrimitive creates a render node and binds each attribute expression.
func (inst *Instance) buildPrimitive(use *config.BasicUse, ctx buildCtx) (*render.Node, error) {
	node := &render.Node{ID: inst.nextNodeID(), Type: use.Name}
	if err := inst.bindAttrs(node, use.Attrs, ctx, nil); err != nil {
		return nil, err
	}

	var segs []*segment
	for _, child := range use.Children {
		built, err := inst.buildSegments(node, child, ctx)
		if err != nil {
			return nil, err
		}
		segs = append(segs, built...)
	}
	inst.segments[node.ID] = segs
	node.Children = flatten(segs)
	return node, nil
}

// buildSlot splices the call-site children saved in the context. With :nth
// it selects a single child; the index is fixed at instantiation time.
func (inst *Instance) buildSlot(parent *render.Node, use *config.ChildrenUse, ctx buildCtx) ([]*segment, error) {
	if use.Nth != nil {
		nthVal, err := expr.Eval(expr.Substitute(use.Nth, ctx.subst), inst.b.Lookup)
		if err != nil {
			return nil, instErrorf(use.Pos, err, "children :nth")
		}
		idx, err := nthVal.AsInt()
		if err != nil {
			return nil, instErrorf(use.Pos, err, "children :nth")
		}
		if idx < 0 || idx >= len(ctx.slot) {
			return nil, instErrorf(use.Pos, nil, "children :nth %d out of range, call site has %d children", idx, len(ctx.slot))
		}
		entry := ctx.slot[idx]
		return inst.buildSegments(parent, entry.use, entry.ctx)
	}
	var out []*segment
	for _, entry := range ctx.slot {
		segs, err := inst.buildSegments(parent, entry.use, entry.ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, segs...)
	}
	return out, nil
}

// bindAttrs subscribes each attribute and stores the initial values. skip
// lists attribute names handled elsewhere.
func (inst *Instance) bindAttrs(node *render.Node, attrs map[string]expr.Expr, ctx buildCtx, skip map[string]bool) error {
	if len(attrs) == 0 {
		return nil
	}
	node.Attrs = make(map[string]value.Value, len(attrs))
	for name, raw := range attrs {
		if skip[name] {
			continue
		}
		e := expr.Substitute(raw, ctx.subst)
		if len(expr.VarRefs(e)) == 0 {
			// Nothing to react to, evaluate once.
			v, err := expr.Eval(e, inst.b.Lookup)
			if err != nil {
				return instErrorf(e.Span(), err, "attribute :%s of %s", name, node.Type)
			}
			node.Attrs[name] = v
			continue
		}
		attrName := name
		nodeID := node.ID
		v, err := inst.b.Graph.Subscribe(inst.ID+":"+nodeID+":"+name, ctx.gen, e, inst.b.Lookup, func(v value.Value, err error) {
			if err != nil {
				inst.b.ReportError(instErrorf(e.Span(), err, "attribute :%s of %s", attrName, node.Type))
				return
			}
			node.Attrs[attrName] = v
			inst.b.EmitPatches(inst.ID, []render.Patch{{
				Kind: render.PatchAttr, Node: nodeID, Attr: attrName, Value: v,
			}})
		})
		if err != nil {
			return instErrorf(e.Span(), err, "attribute :%s of %s", name, node.Type)
		}
		node.Attrs[name] = v
	}
	return nil
}

func flatten(segs []*segment) []*render.Node {
	var out []*render.Node
	for _, s := range segs {
		out = append(out, s.nodes...)
	}
	return out
}
