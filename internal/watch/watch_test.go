package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vane-widgets/vane/internal/watch"
)

func startWatcher(t *testing.T, files []string) *atomic.Int32 {
	t.Helper()
	var fired atomic.Int32
	w, err := watch.New(func() { fired.Add(1) }, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.SetFiles(files))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	// Give the watcher a moment to be ready.
	time.Sleep(50 * time.Millisecond)
	return &fired
}

func TestChangeTriggersCallback(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.vane")
	require.NoError(t, os.WriteFile(cfg, []byte("(defwindow w (label))"), 0o644))

	fired := startWatcher(t, []string{cfg})
	require.NoError(t, os.WriteFile(cfg, []byte("(defwindow w (box))"), 0o644))

	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestBurstCollapsesIntoOneCallback(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.vane")
	require.NoError(t, os.WriteFile(cfg, []byte("a"), 0o644))

	fired := startWatcher(t, []string{cfg})
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(cfg, []byte("bbbb"), 0o644))
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond)
	// The burst fits inside one debounce window.
	time.Sleep(200 * time.Millisecond)
	assert.LessOrEqual(t, fired.Load(), int32(2))
}

func TestUnrelatedFilesAreIgnored(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.vane")
	other := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(cfg, []byte("a"), 0o644))

	fired := startWatcher(t, []string{cfg})
	require.NoError(t, os.WriteFile(other, []byte("scratch"), 0o644))

	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestReplacedFileStillWatched(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.vane")
	require.NoError(t, os.WriteFile(cfg, []byte("a"), 0o644))

	fired := startWatcher(t, []string{cfg})

	// Editors write a temp file and rename it over the original.
	tmp := filepath.Join(dir, ".config.vane.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("b"), 0o644))
	require.NoError(t, os.Rename(tmp, cfg))

	require.Eventually(t, func() bool {
		return fired.Load() >= 1
	}, 2*time.Second, 20*time.Millisecond)
}
