package render

import (
	"context"

	"github.com/vane-widgets/vane/internal/ctxlog"
)

// LogSurface writes every operation to the structured log instead of
// drawing. It is the default surface when no renderer command is configured,
// and doubles as a debugging tap.
type LogSurface struct{}

func (LogSurface) OpenWindow(ctx context.Context, spec *WindowSpec) error {
	ctxlog.FromContext(ctx).Info("Open window.",
		"instance", spec.Instance, "window", spec.Window, "screen", spec.Screen,
		"nodes", countNodes(spec.Root))
	return nil
}

func (LogSurface) ApplyPatches(ctx context.Context, instance string, patches []Patch) error {
	logger := ctxlog.FromContext(ctx)
	for _, p := range patches {
		switch p.Kind {
		case PatchAttr:
			logger.Info("Patch attribute.", "instance", instance, "node", p.Node, "attr", p.Attr, "value", p.Value.String())
		case PatchReplace:
			logger.Info("Patch subtree.", "instance", instance, "node", p.Node, "nodes", countNodes(p.Subtree))
		case PatchAdd:
			logger.Info("Patch add nodes.", "instance", instance, "parent", p.Node, "index", p.Index, "count", len(p.Nodes))
		case PatchRemove:
			logger.Info("Patch remove nodes.", "instance", instance, "removed", p.Removed)
		}
	}
	return nil
}

func (LogSurface) CloseWindow(ctx context.Context, instance string) error {
	ctxlog.FromContext(ctx).Info("Close window.", "instance", instance)
	return nil
}

func countNodes(n *Node) int {
	if n == nil {
		return 0
	}
	total := 1
	for _, c := range n.Children {
		total += countNodes(c)
	}
	return total
}
