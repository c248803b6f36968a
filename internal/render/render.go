// Package render is the boundary between the reactive engine and whatever
// draws the widgets. The engine hands a surface fully evaluated widget trees
// and, afterwards, minimal patches describing what changed. Surfaces never
// see expressions or variables.
package render

import (
	"context"

	"github.com/vane-widgets/vane/internal/value"
)

// Node is one fully evaluated widget in a tree. IDs are unique within a
// window instance and stable across patches.
type Node struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Attrs    map[string]value.Value `json:"attrs,omitempty"`
	Children []*Node                `json:"children,omitempty"`
}

// WindowSpec describes a window instance to open.
type WindowSpec struct {
	// Instance is the unique instance id: the window name, or name:id when
	// opened with an explicit id.
	Instance string `json:"instance"`
	// Window is the defwindow name the instance came from.
	Window string `json:"window"`
	// Screen is the requested output, empty for the default.
	Screen string `json:"screen,omitempty"`
	// Attrs are the evaluated defwindow attributes, passed through opaquely.
	Attrs map[string]value.Value `json:"attrs,omitempty"`
	// Root is the evaluated widget tree.
	Root *Node `json:"root"`
}

// PatchKind enumerates the mutations a surface must support.
type PatchKind string

const (
	// PatchAttr sets one attribute on one node.
	PatchAttr PatchKind = "attr-set"
	// PatchReplace swaps a node's entire subtree.
	PatchReplace PatchKind = "subtree-replace"
	// PatchAdd inserts nodes under a parent at an index.
	PatchAdd PatchKind = "nodes-added"
	// PatchRemove deletes nodes by id.
	PatchRemove PatchKind = "nodes-removed"
)

// Patch is one mutation of an open window's tree.
type Patch struct {
	Kind PatchKind `json:"kind"`
	// Node is the target: the patched node for attr-set and
	// subtree-replace, the parent for nodes-added.
	Node string `json:"node,omitempty"`

	Attr  string      `json:"attr,omitempty"`  // attr-set
	Value value.Value `json:"value,omitempty"` // attr-set

	Subtree *Node `json:"subtree,omitempty"` // subtree-replace

	Nodes []*Node `json:"nodes,omitempty"` // nodes-added
	Index int     `json:"index,omitempty"` // nodes-added

	Removed []string `json:"removed,omitempty"` // nodes-removed
}

// Surface renders windows. Implementations must tolerate CloseWindow for
// instances they never saw.
type Surface interface {
	OpenWindow(ctx context.Context, spec *WindowSpec) error
	ApplyPatches(ctx context.Context, instance string, patches []Patch) error
	CloseWindow(ctx context.Context, instance string) error
}
