package render

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vane-widgets/vane/internal/value"
)

// valueCmp lets cmp.Diff compare value.Value fields, which have no exported
// state.
var valueCmp = cmp.Comparer(value.Equal)

func testSpec() *WindowSpec {
	return &WindowSpec{
		Instance: "bar:left",
		Window:   "bar",
		Screen:   "DP-1",
		Attrs:    map[string]value.Value{"anchor": value.String("top left")},
		Root: &Node{
			ID:   "n1",
			Type: "box",
			Children: []*Node{
				{ID: "n2", Type: "label", Attrs: map[string]value.Value{"text": value.String("hi")}},
				{ID: "n3", Type: "label", Attrs: map[string]value.Value{"text": value.Number(3)}},
			},
		},
	}
}

func TestPipeSurfaceStreamsOperations(t *testing.T) {
	out := filepath.Join(t.TempDir(), "renderer.jsonl")
	surface, err := NewPipeSurface(context.Background(), "cat > "+out)
	require.NoError(t, err)

	spec := testSpec()
	patches := []Patch{
		{Kind: PatchAttr, Node: "n2", Attr: "text", Value: value.String("bye")},
		{Kind: PatchRemove, Removed: []string{"n3"}},
	}
	require.NoError(t, surface.OpenWindow(context.Background(), spec))
	require.NoError(t, surface.ApplyPatches(context.Background(), "bar:left", patches))
	require.NoError(t, surface.CloseWindow(context.Background(), "bar:left"))
	require.NoError(t, surface.Close())

	var lines []string
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		if err != nil {
			return false
		}
		lines = nil
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		return len(lines) == 3
	}, 5*time.Second, 20*time.Millisecond)

	var open, apply, closeMsg pipeMessage
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &open))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &apply))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &closeMsg))

	assert.Equal(t, "open-window", open.Op)
	assert.Empty(t, cmp.Diff(spec, open.Spec, valueCmp))

	assert.Equal(t, "apply-patches", apply.Op)
	assert.Equal(t, "bar:left", apply.Instance)
	assert.Empty(t, cmp.Diff(patches, apply.Patches, valueCmp))

	assert.Equal(t, "close-window", closeMsg.Op)
	assert.Equal(t, "bar:left", closeMsg.Instance)
}

func TestPipeSurfaceCloseSignalsStubbornRenderer(t *testing.T) {
	// A renderer that never reads stdin and ignores its close.
	surface, err := NewPipeSurface(context.Background(), "exec sleep 600 < /dev/null")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- surface.Close() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(closeGrace + 3*time.Second):
		t.Fatal("Close did not return")
	}
	select {
	case <-surface.waited:
	case <-time.After(3 * time.Second):
		t.Fatal("renderer survived Close")
	}
}

func TestRecorderRemembersSpecs(t *testing.T) {
	rec := NewRecorder()
	spec := testSpec()
	require.NoError(t, rec.OpenWindow(context.Background(), spec))
	require.NoError(t, rec.ApplyPatches(context.Background(), "bar:left", []Patch{
		{Kind: PatchAttr, Node: "n2", Attr: "text", Value: value.String("bye")},
	}))

	got := rec.LastOpened("bar:left")
	require.NotNil(t, got)
	assert.Empty(t, cmp.Diff(spec, got, valueCmp))
	assert.Equal(t, 1, rec.OpenCount())

	require.NoError(t, rec.CloseWindow(context.Background(), "bar:left"))
	assert.Equal(t, 1, rec.CloseCount())
}
