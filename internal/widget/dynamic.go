package widget

import (
	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/expr"
	"github.com/vane-widgets/vane/internal/parse"
	"github.com/vane-widgets/vane/internal/render"
	"github.com/vane-widgets/vane/internal/span"
	"github.com/vane-widgets/vane/internal/value"
)

// initForRegion builds a for loop as a dynamic region of parent and
// subscribes to its source expression. When the source changes, the old
// element subtrees are torn down and the region rebuilds in place.
func (inst *Instance) initForRegion(parent *render.Node, seg *segment, loop *config.ForUse, ctx buildCtx) error {
	src := expr.Substitute(loop.Source, ctx.subst)
	initial, err := inst.b.Graph.Subscribe(inst.nextSubID("for"), ctx.gen, src, inst.b.Lookup, func(v value.Value, err error) {
		if err != nil {
			inst.b.ReportError(instErrorf(src.Span(), err, "for %s source", loop.Var))
			return
		}
		inst.rebuildForRegion(parent, seg, loop, ctx, v)
	})
	if err != nil {
		return instErrorf(src.Span(), err, "for %s source", loop.Var)
	}
	nodes, gens, err := inst.buildElements(parent, loop, ctx, initial)
	if err != nil {
		return err
	}
	seg.nodes = nodes
	seg.gens = gens
	return nil
}

// buildElements instantiates the loop body once per source element, each
// under its own generation with the loop variable bound to the element.
func (inst *Instance) buildElements(parent *render.Node, loop *config.ForUse, ctx buildCtx, v value.Value) ([]*render.Node, []string, error) {
	elems, err := v.AsArray()
	if err != nil {
		return nil, nil, instErrorf(loop.Source.Span(), err, "for %s source", loop.Var)
	}
	var nodes []*render.Node
	var gens []string
	fail := func(err error) ([]*render.Node, []string, error) {
		for _, g := range gens {
			inst.unlinkGen(ctx.gen, g)
			inst.dropGen(g)
		}
		return nil, nil, err
	}
	for _, elem := range elems {
		gen := inst.newGen(ctx.gen)
		gens = append(gens, gen)
		subst := make(map[string]expr.Expr, len(ctx.subst)+1)
		for k, e := range ctx.subst {
			subst[k] = e
		}
		subst[loop.Var] = expr.NewLiteral(loop.Pos, elem)

		segs, err := inst.buildSegments(parent, loop.Body, buildCtx{gen: gen, subst: subst, slot: ctx.slot})
		if err != nil {
			return fail(err)
		}
		for _, s := range segs {
			if s.region {
				return fail(instErrorf(loop.Body.Span(), nil, "a for loop body must be a widget, wrap nested loops in a container"))
			}
		}
		nodes = append(nodes, flatten(segs)...)
	}
	return nodes, gens, nil
}

// rebuildForRegion replaces the region's subtrees after a source change. A
// failing rebuild leaves the region empty and reports the error.
func (inst *Instance) rebuildForRegion(parent *render.Node, seg *segment, loop *config.ForUse, ctx buildCtx, v value.Value) {
	start := inst.regionStart(parent, seg)
	removed := seg.ids()
	for _, g := range seg.gens {
		inst.unlinkGen(ctx.gen, g)
		inst.dropGen(g)
	}
	nodes, gens, err := inst.buildElements(parent, loop, ctx, v)
	if err != nil {
		inst.b.ReportError(err)
	}
	seg.nodes = nodes
	seg.gens = gens
	parent.Children = flatten(inst.segments[parent.ID])

	var patches []render.Patch
	if len(removed) > 0 {
		patches = append(patches, render.Patch{Kind: render.PatchRemove, Removed: removed})
	}
	if len(nodes) > 0 {
		patches = append(patches, render.Patch{Kind: render.PatchAdd, Node: parent.ID, Index: start, Nodes: nodes})
	}
	if len(patches) > 0 {
		inst.b.EmitPatches(inst.ID, patches)
	}
}

// regionStart is the child index where seg begins under parent.
func (inst *Instance) regionStart(parent *render.Node, seg *segment) int {
	start := 0
	for _, s := range inst.segments[parent.ID] {
		if s == seg {
			break
		}
		start += len(s.nodes)
	}
	return start
}

// buildLiteral creates a literal node whose children come from parsing its
// :content string as widget source at runtime. A content change tears the
// previous children down, reparses and replaces the whole subtree.
func (inst *Instance) buildLiteral(use *config.BasicUse, ctx buildCtx) (*render.Node, error) {
	content, ok := use.Attrs["content"]
	if !ok {
		return nil, instErrorf(use.Pos, nil, "literal requires a :content attribute")
	}
	node := &render.Node{ID: inst.nextNodeID(), Type: config.LiteralWidget}
	if err := inst.bindAttrs(node, use.Attrs, ctx, map[string]bool{"content": true}); err != nil {
		return nil, err
	}

	// contentGen owns everything built from the current content value.
	var contentGen string
	src := expr.Substitute(content, ctx.subst)
	initial, err := inst.b.Graph.Subscribe(inst.nextSubID("lit"), ctx.gen, src, inst.b.Lookup, func(v value.Value, err error) {
		if err != nil {
			inst.b.ReportError(instErrorf(src.Span(), err, "literal :content"))
			return
		}
		if err := inst.rebuildLiteral(node, ctx, &contentGen, src.Span(), v); err != nil {
			inst.b.ReportError(err)
			return
		}
		inst.b.EmitPatches(inst.ID, []render.Patch{{
			Kind: render.PatchReplace, Node: node.ID, Subtree: node,
		}})
	})
	if err != nil {
		return nil, instErrorf(src.Span(), err, "literal :content")
	}
	if err := inst.rebuildLiteral(node, ctx, &contentGen, src.Span(), initial); err != nil {
		return nil, err
	}
	return node, nil
}

// rebuildLiteral parses the content value and builds its widgets under a
// fresh generation. On error the node is left without children.
func (inst *Instance) rebuildLiteral(node *render.Node, ctx buildCtx, contentGen *string, pos span.Span, v value.Value) error {
	if *contentGen != "" {
		inst.unlinkGen(ctx.gen, *contentGen)
		inst.dropGen(*contentGen)
		*contentGen = ""
	}
	inst.segments[node.ID] = nil
	node.Children = nil

	if v.IsNull() {
		return nil
	}
	text := v.String()
	if text == "" {
		return nil
	}
	forms, err := parse.Read("literal", text)
	if err != nil {
		return instErrorf(pos, err, "parsing literal content")
	}
	gen := inst.newGen(ctx.gen)
	*contentGen = gen
	childCtx := buildCtx{gen: gen, subst: ctx.subst, slot: ctx.slot}
	var segs []*segment
	for _, form := range forms {
		use, err := config.BuildUse(form)
		if err == nil {
			var built []*segment
			built, err = inst.buildSegments(node, use, childCtx)
			segs = append(segs, built...)
		}
		if err != nil {
			inst.unlinkGen(ctx.gen, gen)
			inst.dropGen(gen)
			*contentGen = ""
			inst.segments[node.ID] = nil
			node.Children = nil
			return instErrorf(form.Span(), err, "literal content")
		}
		inst.segments[node.ID] = segs
	}
	node.Children = flatten(segs)
	return nil
}
