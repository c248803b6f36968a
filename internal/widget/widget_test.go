package widget_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/graph"
	"github.com/vane-widgets/vane/internal/render"
	"github.com/vane-widgets/vane/internal/store"
	"github.com/vane-widgets/vane/internal/value"
	"github.com/vane-widgets/vane/internal/widget"
)

// harness wires a builder against an in-memory config and store and records
// everything the builder emits.
type harness struct {
	cfg     *config.Config
	store   *store.Store
	graph   *graph.Graph
	builder *widget.Builder
	patches []render.Patch
	errs    []error
}

func newHarness(t *testing.T, src string) *harness {
	t.Helper()
	loader := &config.Loader{ReadFile: func(path string) ([]byte, error) {
		if path != "config.vane" {
			return nil, fmt.Errorf("no such file %s", path)
		}
		return []byte(src), nil
	}}
	cfg, err := loader.Load("config.vane")
	require.NoError(t, err)

	h := &harness{cfg: cfg, store: store.New(), graph: graph.New()}
	for name, v := range cfg.Vars {
		h.store.Define(name, v.Initial)
	}
	h.builder = &widget.Builder{
		Widgets: cfg.Widgets,
		Graph:   h.graph,
		Lookup:  h.store.Lookup,
		EmitPatches: func(instance string, patches []render.Patch) {
			h.patches = append(h.patches, patches...)
		},
		ReportError: func(err error) { h.errs = append(h.errs, err) },
	}
	return h
}

func (h *harness) open(t *testing.T, window, id string, args map[string]value.Value) *widget.Instance {
	t.Helper()
	win, ok := h.cfg.Windows[window]
	require.True(t, ok, "window %q not defined", window)
	inst, err := h.builder.Instantiate(win, id, "", args)
	require.NoError(t, err)
	return inst
}

// set updates a variable and propagates the change through the graph.
func (h *harness) set(t *testing.T, name string, v value.Value) {
	t.Helper()
	changed, err := h.store.Set(name, v)
	require.NoError(t, err)
	if changed {
		h.graph.Changed([]string{name}, h.store.Lookup)
	}
}

func findNode(root *render.Node, id string) *render.Node {
	if root.ID == id {
		return root
	}
	for _, c := range root.Children {
		if n := findNode(c, id); n != nil {
			return n
		}
	}
	return nil
}

func TestInstantiateStaticTree(t *testing.T) {
	h := newHarness(t, `
		(defvar name "world")
		(defwindow main
			:anchor "top right"
			(box :class "row"
				(label :text "hello ${name}")
				"plain text"))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	require.Equal(t, "main", inst.Spec.Instance)
	assert.Equal(t, value.String("top right"), inst.Spec.Attrs["anchor"])

	root := inst.Spec.Root
	require.Equal(t, "box", root.Type)
	assert.Equal(t, value.String("row"), root.Attrs["class"])
	require.Len(t, root.Children, 2)
	assert.Equal(t, value.String("hello world"), root.Children[0].Attrs["text"])
	assert.Equal(t, "label", root.Children[1].Type)
	assert.Equal(t, value.String("plain text"), root.Children[1].Attrs["text"])
}

func TestAttrPatchOnVariableChange(t *testing.T) {
	h := newHarness(t, `
		(defvar name "world")
		(defwindow main (label :text "hello ${name}" :class "static"))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	h.set(t, "name", value.String("moon"))

	require.Len(t, h.patches, 1)
	p := h.patches[0]
	assert.Equal(t, render.PatchAttr, p.Kind)
	assert.Equal(t, inst.Spec.Root.ID, p.Node)
	assert.Equal(t, "text", p.Attr)
	assert.Equal(t, value.String("hello moon"), p.Value)
	assert.Equal(t, value.String("hello moon"), inst.Spec.Root.Attrs["text"])
}

func TestCustomWidgetParams(t *testing.T) {
	h := newHarness(t, `
		(defvar who "world")
		(defwidget greeter [name ?class]
			(label :text "hi ${name}" :class {class}))
		(defwindow main (greeter :name {who}))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	root := inst.Spec.Root
	assert.Equal(t, value.String("hi world"), root.Attrs["text"])
	assert.Equal(t, value.String(""), root.Attrs["class"])

	// The parameter is bound to the call-site expression, so the label
	// still tracks the underlying variable.
	h.set(t, "who", value.String("there"))
	assert.Equal(t, value.String("hi there"), root.Attrs["text"])
}

func TestMissingRequiredParam(t *testing.T) {
	// Call sites written in config are rejected at load, so the only way to
	// reach the instantiation-time check is content built at runtime.
	h := newHarness(t, `
		(defvar content "(label :text \"fine\")")
		(defwidget greeter [name] (label :text {name}))
		(defwindow main (box (literal :content {content})))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	size := h.graph.Size()
	lit := inst.Spec.Root.Children[0]
	h.set(t, "content", value.String("(greeter)"))
	require.NotEmpty(t, h.errs)
	assert.Contains(t, h.errs[len(h.errs)-1].Error(), `requires parameter "name"`)
	assert.Empty(t, lit.Children)
	// The failed build left no subscriptions behind.
	assert.Equal(t, size, h.graph.Size())
}

func TestWindowArgsShadowGlobals(t *testing.T) {
	h := newHarness(t, `
		(defvar city "berlin")
		(defwindow main (label :text {city}))
	`)
	inst := h.open(t, "main", "main:1", map[string]value.Value{
		"city": value.String("lagos"),
	})
	defer inst.Teardown()

	assert.Equal(t, value.String("lagos"), inst.Spec.Root.Attrs["text"])

	// The argument is a fixed value, not a variable reference.
	h.set(t, "city", value.String("oslo"))
	assert.Equal(t, value.String("lagos"), inst.Spec.Root.Attrs["text"])
	assert.Empty(t, h.patches)
}

func TestChildrenSlot(t *testing.T) {
	h := newHarness(t, `
		(defwidget frame [] (box :class "frame" (children)))
		(defwindow main
			(frame
				(label :text "one")
				(label :text "two")))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	root := inst.Spec.Root
	require.Equal(t, "box", root.Type)
	require.Len(t, root.Children, 2)
	assert.Equal(t, value.String("one"), root.Children[0].Attrs["text"])
	assert.Equal(t, value.String("two"), root.Children[1].Attrs["text"])
}

func TestChildrenSlotNth(t *testing.T) {
	h := newHarness(t, `
		(defwidget second [] (box (children :nth 1)))
		(defwindow main
			(second
				(label :text "one")
				(label :text "two")))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	root := inst.Spec.Root
	require.Len(t, root.Children, 1)
	assert.Equal(t, value.String("two"), root.Children[0].Attrs["text"])
}

func TestChildrenSlotNthOutOfRange(t *testing.T) {
	h := newHarness(t, `
		(defwidget second [] (box (children :nth 5)))
		(defwindow main (second (label :text "one")))
	`)
	win := h.cfg.Windows["main"]
	_, err := h.builder.Instantiate(win, "main", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
	assert.Zero(t, h.graph.Size())
}

func TestForLoop(t *testing.T) {
	h := newHarness(t, `
		(defvar items "[\"a\",\"b\"]")
		(defwindow main
			(box :class "list"
				(label :text "head")
				(for item in {items}
					(label :text {item}))
				(label :text "tail")))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	root := inst.Spec.Root
	texts := func() []string {
		var out []string
		for _, c := range root.Children {
			out = append(out, c.Attrs["text"].String())
		}
		return out
	}
	require.Equal(t, []string{"head", "a", "b", "tail"}, texts())

	sizeBefore := h.graph.Size()
	h.set(t, "items", value.String(`["x","y","z"]`))
	require.Equal(t, []string{"head", "x", "y", "z", "tail"}, texts())

	// Element attributes are fixed at build time, only the loop source
	// stays subscribed.
	assert.Equal(t, sizeBefore, h.graph.Size())

	require.Len(t, h.patches, 2)
	assert.Equal(t, render.PatchRemove, h.patches[0].Kind)
	assert.Len(t, h.patches[0].Removed, 2)
	assert.Equal(t, render.PatchAdd, h.patches[1].Kind)
	assert.Equal(t, root.ID, h.patches[1].Node)
	assert.Equal(t, 1, h.patches[1].Index)
	assert.Len(t, h.patches[1].Nodes, 3)
}

func TestForLoopEmptySource(t *testing.T) {
	h := newHarness(t, `
		(defvar items "[]")
		(defwindow main
			(box (for item in {items} (label :text {item}))))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	assert.Empty(t, inst.Spec.Root.Children)

	h.set(t, "items", value.String(`["only"]`))
	require.Len(t, inst.Spec.Root.Children, 1)
	require.Len(t, h.patches, 1)
	assert.Equal(t, render.PatchAdd, h.patches[0].Kind)
	assert.Equal(t, 0, h.patches[0].Index)
}

func TestForLoopElementTeardown(t *testing.T) {
	h := newHarness(t, `
		(defvar items "[\"a\",\"b\",\"c\"]")
		(defwindow main
			(box (for item in {items} (label :text {item}))))
	`)
	inst := h.open(t, "main", "main", nil)

	h.set(t, "items", value.String(`[]`))
	assert.Empty(t, inst.Spec.Root.Children)

	inst.Teardown()
	assert.Zero(t, h.graph.Size())
}

func TestLiteralWidget(t *testing.T) {
	h := newHarness(t, `
		(defvar content "(label :text \"built\")")
		(defwindow main (box (literal :content {content})))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	lit := inst.Spec.Root.Children[0]
	require.Equal(t, "literal", lit.Type)
	require.Len(t, lit.Children, 1)
	assert.Equal(t, value.String("built"), lit.Children[0].Attrs["text"])

	h.set(t, "content", value.String(`(box (label :text "rebuilt"))`))
	require.Len(t, lit.Children, 1)
	assert.Equal(t, "box", lit.Children[0].Type)
	assert.Equal(t, value.String("rebuilt"), lit.Children[0].Children[0].Attrs["text"])

	require.Len(t, h.patches, 1)
	assert.Equal(t, render.PatchReplace, h.patches[0].Kind)
	assert.Equal(t, lit.ID, h.patches[0].Node)
	assert.Same(t, lit, h.patches[0].Subtree)
}

func TestLiteralWidgetBadContent(t *testing.T) {
	h := newHarness(t, `
		(defvar content "(label :text \"fine\")")
		(defwindow main (box (literal :content {content})))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	lit := inst.Spec.Root.Children[0]
	h.set(t, "content", value.String("(label :text"))
	require.NotEmpty(t, h.errs)
	assert.Empty(t, lit.Children)
}

func TestEvalErrorIsReportedNotFatal(t *testing.T) {
	h := newHarness(t, `
		(defvar n "1")
		(defwindow main (label :text {n} :pad {"wide" - 1}))
	`)
	win := h.cfg.Windows["main"]
	_, err := h.builder.Instantiate(win, "main", "", nil)
	require.Error(t, err)
	assert.Zero(t, h.graph.Size())
}

func TestRuntimeEvalErrorIsolated(t *testing.T) {
	h := newHarness(t, `
		(defvar n "1")
		(defwindow main (label :text {n == "boom" ? n - "x" : n}))
	`)
	inst := h.open(t, "main", "main", nil)
	defer inst.Teardown()

	h.set(t, "n", value.String("boom"))
	require.Len(t, h.errs, 1)
	// The previous value stays on the node.
	assert.Equal(t, value.String("1"), inst.Spec.Root.Attrs["text"])

	h.set(t, "n", value.String("2"))
	assert.Equal(t, value.String("2"), inst.Spec.Root.Attrs["text"])
}

func TestTeardownDropsAllSubscriptions(t *testing.T) {
	h := newHarness(t, `
		(defvar items "[\"a\"]")
		(defvar content "(label :text \"x\")")
		(defwidget row [v] (box (label :text {v}) (children)))
		(defwindow main
			(box
				(row :v {items}
					(for item in {items} (label :text {item})))
				(literal :content {content})))
	`)
	inst := h.open(t, "main", "main", nil)
	require.Positive(t, h.graph.Size())

	inst.Teardown()
	assert.Zero(t, h.graph.Size())

	// Nothing reacts after teardown.
	h.set(t, "items", value.String(`["b"]`))
	assert.Empty(t, h.patches)
}

func TestTwoInstancesIndependent(t *testing.T) {
	h := newHarness(t, `
		(defvar name "a")
		(defwindow main (label :text {name}))
	`)
	first := h.open(t, "main", "main:1", nil)
	second := h.open(t, "main", "main:2", nil)
	defer second.Teardown()

	h.set(t, "name", value.String("b"))
	require.Len(t, h.patches, 2)

	h.patches = nil
	first.Teardown()
	h.set(t, "name", value.String("c"))
	require.Len(t, h.patches, 1)
	assert.Equal(t, value.String("c"), second.Spec.Root.Attrs["text"])
}

func TestForLoopRootRejected(t *testing.T) {
	h := newHarness(t, `
		(defvar items "[\"a\"]")
		(defwindow main (for item in {items} (label :text {item})))
	`)
	win := h.cfg.Windows["main"]
	_, err := h.builder.Instantiate(win, "main", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "window root")
}

func TestReservedWindowArgsInScope(t *testing.T) {
	h := newHarness(t, `
		(defwindow meter (box
			(label :text {id})
			(label :text "on ${screen}")))
	`)
	win := h.cfg.Windows["meter"]
	inst, err := h.builder.Instantiate(win, "meter:left", "DP-1", nil)
	require.NoError(t, err)
	defer inst.Teardown()

	root := inst.Spec.Root
	require.Len(t, root.Children, 2)
	assert.Equal(t, value.String("meter:left"), root.Children[0].Attrs["text"])
	assert.Equal(t, value.String("on DP-1"), root.Children[1].Attrs["text"])
	// Fixed at open time, never subscribed.
	assert.Equal(t, 0, h.graph.Size())
}
