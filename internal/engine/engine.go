// Package engine is the daemon's reactive core. All state lives on a single
// goroutine: variable updates, window commands and reloads are posted to it
// as closures, so the store, the dependency graph and the open instances
// never need cross-goroutine locking. Script processes and the IPC server
// run on their own goroutines and only communicate through posted events.
package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/ctxlog"
	"github.com/vane-widgets/vane/internal/graph"
	"github.com/vane-widgets/vane/internal/render"
	"github.com/vane-widgets/vane/internal/settings"
	"github.com/vane-widgets/vane/internal/store"
	"github.com/vane-widgets/vane/internal/supervisor"
	"github.com/vane-widgets/vane/internal/value"
	"github.com/vane-widgets/vane/internal/widget"
)

// Options configures an Engine.
type Options struct {
	Settings *settings.Settings
	Surface  render.Surface
	// Loader reads configuration files on reload. A nil Loader reads from
	// the filesystem.
	Loader *config.Loader
	// ConfigPath is the entry file reloads start from.
	ConfigPath string
}

// Engine owns the daemon state and serializes every mutation.
type Engine struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   Options

	events chan func()
	done   chan struct{}

	cfg       *config.Config
	store     *store.Store
	graph     *graph.Graph
	sup       *supervisor.Supervisor
	builder   *widget.Builder
	instances map[string]*instanceState
	// pending batches patches per instance while a change propagates.
	pending map[string][]render.Patch
}

type instanceState struct {
	inst   *widget.Instance
	window string
	screen string
	args   map[string]value.Value
}

// gateOwner groups the run-while subscriptions for bulk teardown on reload.
const gateOwner = "gates"

// New builds an engine around an already loaded configuration and starts its
// core goroutine.
func New(ctx context.Context, cfg *config.Config, opts Options) *Engine {
	if opts.Settings == nil {
		opts.Settings = settings.Default()
	}
	if opts.Surface == nil {
		opts.Surface = render.LogSurface{}
	}
	if opts.Loader == nil {
		opts.Loader = &config.Loader{}
	}
	ctx, cancel := context.WithCancel(ctx)
	e := &Engine{
		ctx:       ctx,
		cancel:    cancel,
		opts:      opts,
		events:    make(chan func(), 256),
		done:      make(chan struct{}),
		cfg:       cfg,
		store:     store.New(),
		graph:     graph.New(),
		instances: make(map[string]*instanceState),
		pending:   make(map[string][]render.Patch),
	}
	st := opts.Settings
	e.sup = supervisor.New(ctx, supervisor.Options{
		DefaultTimeout: st.PollTimeout,
		BackoffMin:     st.BackoffMin,
		BackoffMax:     st.BackoffMax,
		Grace:          st.TermGrace,
		Emit: func(name string, v value.Value) {
			if !e.postEmit(func() { e.applyUpdate(name, v) }) {
				ctxlog.FromContext(ctx).Warn("Event queue full, dropped a script update.", "variable", name)
			}
		},
		Report: func(err error) {
			ctxlog.FromContext(ctx).Warn("Script variable failed.", "error", err)
		},
	})
	e.builder = &widget.Builder{
		Widgets: cfg.Widgets,
		Graph:   e.graph,
		Lookup:  e.store.Lookup,
		EmitPatches: func(instance string, patches []render.Patch) {
			e.pending[instance] = append(e.pending[instance], patches...)
		},
		ReportError: func(err error) {
			ctxlog.FromContext(ctx).Warn("Widget update failed.", "error", err)
		},
	}

	for name, v := range cfg.Vars {
		e.store.Define(name, v.Initial)
	}
	e.registerGates()
	e.syncProcesses()

	go e.loop()
	return e
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.ctx.Done():
			e.shutdown()
			return
		case fn := <-e.events:
			fn()
		}
	}
}

// post schedules fn on the core goroutine.
func (e *Engine) post(fn func()) {
	select {
	case e.events <- fn:
	case <-e.ctx.Done():
	}
}

// postEmit schedules a script-variable update without ever blocking the
// emitter. The core goroutine may be waiting for that very worker to stop,
// so a full queue drops the update; the variable delivers a fresh value on
// its next emission.
func (e *Engine) postEmit(fn func()) bool {
	select {
	case e.events <- fn:
		return true
	default:
		return false
	}
}

// call runs fn on the core goroutine and waits for its result.
func call[T any](ctx context.Context, e *Engine, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	e.post(func() {
		v, err := fn()
		ch <- result{v, err}
	})
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-e.ctx.Done():
		var zero T
		return zero, fmt.Errorf("engine is shutting down")
	}
}

// Stop shuts the engine down and waits for the core goroutine to finish.
func (e *Engine) Stop() {
	e.cancel()
	<-e.done
}

// Done is closed once the core goroutine has exited.
func (e *Engine) Done() <-chan struct{} { return e.done }

// shutdown runs on the core goroutine when the context ends.
func (e *Engine) shutdown() {
	logger := ctxlog.FromContext(e.ctx)
	for id, st := range e.instances {
		st.inst.Teardown()
		if err := e.opts.Surface.CloseWindow(context.Background(), id); err != nil {
			logger.Warn("Closing window on shutdown failed.", "instance", id, "error", err)
		}
		delete(e.instances, id)
	}
	e.sup.StopAll()
	logger.Info("Engine stopped.")
}

// applyUpdate sets a variable and propagates the change: dependent widget
// subscriptions re-evaluate, batched patches flush to the surface and the
// variable's :onchange hook fires.
func (e *Engine) applyUpdate(name string, v value.Value) {
	changed, err := e.store.Set(name, v)
	if err != nil {
		ctxlog.FromContext(e.ctx).Warn("Dropping update for undefined variable.", "var", name)
		return
	}
	if !changed {
		return
	}
	e.graph.Changed([]string{name}, e.store.Lookup)
	e.flushPatches()

	if def, ok := e.cfg.Vars[name]; ok && def.OnChange != "" {
		e.sup.RunOnChange(def, v)
	}
}

func (e *Engine) flushPatches() {
	if len(e.pending) == 0 {
		return
	}
	ids := make([]string, 0, len(e.pending))
	for id := range e.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	logger := ctxlog.FromContext(e.ctx)
	for _, id := range ids {
		patches := e.pending[id]
		delete(e.pending, id)
		if _, open := e.instances[id]; !open {
			continue
		}
		if err := e.opts.Surface.ApplyPatches(e.ctx, id, patches); err != nil {
			logger.Warn("Applying patches failed.", "instance", id, "error", err)
		}
	}
}

// registerGates subscribes every :run-while expression so gate state tracks
// its variables.
func (e *Engine) registerGates() {
	logger := ctxlog.FromContext(e.ctx)
	for _, def := range e.cfg.Vars {
		if def.RunWhile == nil {
			continue
		}
		name := def.Name
		initial, err := e.graph.Subscribe("gate:"+name, gateOwner, def.RunWhile, e.store.Lookup, func(v value.Value, err error) {
			if err != nil {
				logger.Warn("Gate expression failed, leaving gate as is.", "var", name, "error", err)
				return
			}
			open, err := v.AsBool()
			if err != nil {
				logger.Warn("Gate expression is not a boolean.", "var", name, "error", err)
				return
			}
			e.sup.SetGate(name, open)
		})
		if err != nil {
			logger.Warn("Gate expression failed at startup.", "var", name, "error", err)
			continue
		}
		if open, err := initial.AsBool(); err == nil {
			e.sup.SetGate(name, open)
		}
	}
}

// syncProcesses starts and stops script variable processes according to the
// lifecycle policy: with lazy_listen every script variable runs only while an
// open window depends on it, otherwise all script variables run.
func (e *Engine) syncProcesses() {
	for _, def := range sortedVars(e.cfg.Vars) {
		if !def.IsScript() {
			continue
		}
		run := true
		if e.opts.Settings.LazyListen {
			run = e.graph.InUse(def.Name)
		}
		if run {
			e.sup.Start(def)
		} else {
			e.sup.Stop(def.Name)
		}
	}
}

func sortedVars(vars map[string]*config.Var) []*config.Var {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*config.Var, 0, len(names))
	for _, name := range names {
		out = append(out, vars[name])
	}
	return out
}
