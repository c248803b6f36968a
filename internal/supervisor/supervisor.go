// Package supervisor runs the commands behind poll and listen variables.
// Each script variable owns one goroutine; results and failures are handed
// back to the engine through callbacks, never applied directly, so all state
// changes still flow through the reactive core.
package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/ctxlog"
	"github.com/vane-widgets/vane/internal/value"
)

// Options tunes the supervisor. Zero fields fall back to defaults.
type Options struct {
	// DefaultTimeout bounds poll commands with no :timeout of their own.
	DefaultTimeout time.Duration
	// BackoffMin and BackoffMax bound the listener restart delay.
	BackoffMin time.Duration
	BackoffMax time.Duration
	// Grace is how long a terminated process gets between SIGTERM and
	// SIGKILL.
	Grace time.Duration

	// Emit delivers a new value for a variable.
	Emit func(name string, v value.Value)
	// Report delivers a script failure.
	Report func(err error)
}

func (o *Options) withDefaults() {
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = 10 * time.Second
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 250 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
	if o.Grace <= 0 {
		o.Grace = 2 * time.Second
	}
	if o.Emit == nil {
		o.Emit = func(string, value.Value) {}
	}
	if o.Report == nil {
		o.Report = func(error) {}
	}
}

// Supervisor owns every running script variable process.
type Supervisor struct {
	ctx  context.Context
	opts Options

	mu      sync.Mutex
	workers map[string]*worker
	// gates remembers :run-while state per variable so a gate set before
	// the worker starts, or across a restart, still applies.
	gates map[string]bool
}

type worker struct {
	cancel context.CancelFunc
	done   chan struct{}
	poke   chan struct{}
	gate   chan bool
}

// New returns a supervisor. ctx bounds every process it will ever start.
func New(ctx context.Context, opts Options) *Supervisor {
	opts.withDefaults()
	return &Supervisor{ctx: ctx, opts: opts, workers: make(map[string]*worker), gates: make(map[string]bool)}
}

// Start launches the runner for a script variable. Starting a variable that
// is already running is a no-op.
func (s *Supervisor) Start(v *config.Var) {
	if !v.IsScript() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.workers[v.Name]; running {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	w := &worker{
		cancel: cancel,
		done:   make(chan struct{}),
		poke:   make(chan struct{}, 1),
		gate:   make(chan bool, 1),
	}
	s.workers[v.Name] = w

	open, tracked := s.gates[v.Name]
	if !tracked {
		open = true
	}

	logger := ctxlog.FromContext(s.ctx).With("var", v.Name, "kind", v.Kind.String())
	ctx = ctxlog.WithLogger(ctx, logger)
	switch v.Kind {
	case config.VarPoll:
		go s.runPoller(ctx, v, w, open)
	case config.VarListen:
		go s.runListener(ctx, v, w)
	}
}

// Stop terminates the runner for one variable and waits for it to wind down.
func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	w, ok := s.workers[name]
	if ok {
		delete(s.workers, name)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	w.cancel()
	<-w.done
}

// StopAll terminates every runner.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	workers := s.workers
	s.workers = make(map[string]*worker)
	s.mu.Unlock()
	for _, w := range workers {
		w.cancel()
	}
	for _, w := range workers {
		<-w.done
	}
}

// Running reports whether the variable has a live runner.
func (s *Supervisor) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.workers[name]
	return ok
}

// Poke forces an immediate poll, resetting nothing about the schedule. Pokes
// while a poll is in flight coalesce into one.
func (s *Supervisor) Poke(name string) {
	s.mu.Lock()
	w, ok := s.workers[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case w.poke <- struct{}{}:
	default:
	}
}

// SetGate opens or closes a poller's :run-while gate. A closed gate skips
// ticks; reopening pokes immediately so the value catches up.
func (s *Supervisor) SetGate(name string, open bool) {
	s.mu.Lock()
	s.gates[name] = open
	w, ok := s.workers[name]
	s.mu.Unlock()
	if !ok {
		return
	}
	// Replace any queued gate state with the latest.
	select {
	case <-w.gate:
	default:
	}
	w.gate <- open
}

// RunOnChange fires a variable's :on-change command without waiting for it.
// The new value is exposed as VANE_VALUE.
func (s *Supervisor) RunOnChange(v *config.Var, newValue value.Value) {
	if v.OnChange == "" {
		return
	}
	logger := ctxlog.FromContext(s.ctx)
	cmd := shellCommand(v.OnChange, []string{"VANE_VALUE=" + newValue.String()})
	if err := cmd.Start(); err != nil {
		s.opts.Report(&ProcessError{Var: v.Name, Cmd: v.OnChange, Err: err})
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Warn("On-change command failed.", "var", v.Name, "error", err)
		}
	}()
}
