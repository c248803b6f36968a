package render

import (
	"context"
	"sync"
)

// Recorder is a Surface that remembers everything, for tests and for the
// `state --all` style of introspection.
type Recorder struct {
	mu      sync.Mutex
	Opened  []*WindowSpec
	Patched map[string][]Patch
	Closed  []string
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{Patched: make(map[string][]Patch)}
}

func (r *Recorder) OpenWindow(_ context.Context, spec *WindowSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Opened = append(r.Opened, spec)
	return nil
}

func (r *Recorder) ApplyPatches(_ context.Context, instance string, patches []Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Patched[instance] = append(r.Patched[instance], patches...)
	return nil
}

func (r *Recorder) CloseWindow(_ context.Context, instance string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Closed = append(r.Closed, instance)
	return nil
}

// Patches returns the patch log for one window instance.
func (r *Recorder) Patches(instance string) []Patch {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Patch, len(r.Patched[instance]))
	copy(out, r.Patched[instance])
	return out
}

// OpenCount returns how many windows were opened.
func (r *Recorder) OpenCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Opened)
}

// CloseCount returns how many windows were closed.
func (r *Recorder) CloseCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Closed)
}

// LastOpened returns the most recent spec opened for the instance, or nil.
func (r *Recorder) LastOpened(instance string) *WindowSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Opened) - 1; i >= 0; i-- {
		if r.Opened[i].Instance == instance {
			return r.Opened[i]
		}
	}
	return nil
}
