package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/ctxlog"
	"github.com/vane-widgets/vane/internal/value"
)

// Reload loads the configuration again and swaps it in. A configuration
// that fails to load or validate leaves the running state untouched.
// Variables whose definition is unchanged keep their current value and
// process; open windows are rebuilt against the new definitions.
func (e *Engine) Reload(ctx context.Context) error {
	newCfg, err := e.opts.Loader.Load(e.opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("reload aborted, keeping previous configuration: %w", err)
	}
	_, err = call(ctx, e, func() (struct{}, error) {
		return struct{}{}, e.applyConfig(newCfg)
	})
	return err
}

// reopenSpec remembers an open instance across a reload.
type reopenSpec struct {
	id     string
	window string
	screen string
	args   map[string]value.Value
}

// applyConfig runs on the core goroutine. The new configuration is already
// validated, so from here the swap always completes; individual windows that
// no longer instantiate stay closed and are reported.
func (e *Engine) applyConfig(newCfg *config.Config) error {
	logger := ctxlog.FromContext(e.ctx)

	var reopen []reopenSpec
	for id, st := range e.instances {
		reopen = append(reopen, reopenSpec{id: id, window: st.window, screen: st.screen, args: st.args})
	}
	sort.Slice(reopen, func(i, j int) bool { return reopen[i].id < reopen[j].id })
	for _, r := range reopen {
		e.closeInstance(r.id)
	}

	e.graph.DropOwner(gateOwner)
	e.diffVars(newCfg)
	e.cfg = newCfg
	e.builder.Widgets = newCfg.Widgets
	e.registerGates()
	e.syncProcesses()

	var errs []error
	for _, r := range reopen {
		if _, ok := newCfg.Windows[r.window]; !ok {
			logger.Warn("Window disappeared on reload, leaving it closed.", "instance", r.id, "window", r.window)
			continue
		}
		if err := e.openInstance(r.window, r.id, r.screen, rawArgs(r.args)); err != nil {
			errs = append(errs, fmt.Errorf("reopening %s: %w", r.id, err))
		}
	}
	logger.Info("Configuration reloaded.", "vars", len(newCfg.Vars), "windows", len(newCfg.Windows), "reopened", len(reopen)-len(errs))
	return errors.Join(errs...)
}

// diffVars reconciles the variable set. Unchanged definitions keep their
// current value and their running process.
func (e *Engine) diffVars(newCfg *config.Config) {
	for name, oldDef := range e.cfg.Vars {
		newDef, kept := newCfg.Vars[name]
		if kept && sameVarDef(oldDef, newDef) {
			continue
		}
		e.sup.Stop(name)
		if !kept {
			e.store.Undefine(name)
		} else {
			e.store.Define(name, newDef.Initial)
		}
	}
	for name, newDef := range newCfg.Vars {
		if !e.store.Has(name) {
			e.store.Define(name, newDef.Initial)
		}
	}
}

func sameVarDef(a, b *config.Var) bool {
	if a.Kind != b.Kind || a.Command != b.Command || a.Interval != b.Interval ||
		a.Timeout != b.Timeout || a.OnChange != b.OnChange {
		return false
	}
	if !value.Equal(a.Initial, b.Initial) {
		return false
	}
	switch {
	case a.RunWhile == nil && b.RunWhile == nil:
		return true
	case a.RunWhile == nil || b.RunWhile == nil:
		return false
	}
	return a.RunWhile.String() == b.RunWhile.String()
}

func rawArgs(args map[string]value.Value) map[string]string {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]string, len(args))
	for name, v := range args {
		out[name] = v.String()
	}
	return out
}
