// Package watch triggers configuration reloads when the loaded files change
// on disk. It watches the parent directories rather than the files, because
// editors typically replace files instead of writing them in place, and
// collapses bursts of events into one callback.
package watch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/vane-widgets/vane/internal/ctxlog"
)

// Watcher observes a set of configuration files.
type Watcher struct {
	debounce time.Duration
	onChange func()
	fw       *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

// New creates a watcher that calls onChange after file activity settles.
func New(onChange func(), debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &Watcher{
		debounce: debounce,
		onChange: onChange,
		fw:       fw,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}, nil
}

// SetFiles replaces the watched file set. Call it again after every reload,
// since includes can change which files make up the configuration.
func (w *Watcher) SetFiles(files []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	wanted := make(map[string]bool, len(files))
	wantedDirs := make(map[string]bool)
	for _, f := range files {
		clean := filepath.Clean(f)
		wanted[clean] = true
		wantedDirs[filepath.Dir(clean)] = true
	}
	for dir := range w.dirs {
		if !wantedDirs[dir] {
			w.fw.Remove(dir)
			delete(w.dirs, dir)
		}
	}
	for dir := range wantedDirs {
		if !w.dirs[dir] {
			if err := w.fw.Add(dir); err != nil {
				return err
			}
			w.dirs[dir] = true
		}
	}
	w.files = wanted
	return nil
}

func (w *Watcher) watches(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[filepath.Clean(path)]
}

// Run processes events until the context ends.
func (w *Watcher) Run(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	for {
		select {
		case <-ctx.Done():
			w.fw.Close()
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !w.watches(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			logger.Debug("Configuration file changed.", "path", ev.Name, "op", ev.Op.String())
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(w.debounce)
			pending = true
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.Warn("File watcher error.", "error", err)
		case <-timer.C:
			pending = false
			w.onChange()
		}
	}
}
