// Package store holds the current value of every variable. It is the only
// state shared between the reactive core and producer goroutines, so all
// access goes through a lock; readers get consistent snapshots, writers
// report whether the value actually changed.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/vane-widgets/vane/internal/value"
)

// Store maps variable names to their current values.
type Store struct {
	mu   sync.RWMutex
	vars map[string]value.Value
}

// New returns an empty store.
func New() *Store {
	return &Store{vars: make(map[string]value.Value)}
}

// Define sets a variable's value, creating it if needed.
func (s *Store) Define(name string, v value.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[name] = v
}

// Undefine removes a variable.
func (s *Store) Undefine(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vars, name)
}

// Get returns the variable's current value.
func (s *Store) Get(name string) (value.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Set updates an existing variable and reports whether the stored value
// changed. Setting an undefined variable is an error; definitions only come
// from configuration loads.
func (s *Store) Set(name string, v value.Value) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.vars[name]
	if !ok {
		return false, fmt.Errorf("no variable named %q", name)
	}
	if value.Equal(old, v) {
		return false, nil
	}
	s.vars[name] = v
	return true, nil
}

// Has reports whether the variable is defined.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vars[name]
	return ok
}

// Names returns the defined variable names, sorted.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.vars))
	for name := range s.vars {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot copies the full variable map.
func (s *Store) Snapshot() map[string]value.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]value.Value, len(s.vars))
	for name, v := range s.vars {
		out[name] = v
	}
	return out
}

// Lookup adapts the store to the expression evaluator.
func (s *Store) Lookup(name string) (value.Value, bool) {
	return s.Get(name)
}
