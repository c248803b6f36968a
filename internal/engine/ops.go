package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/ctxlog"
	"github.com/vane-widgets/vane/internal/value"
)

// OpenRequest describes one window to open.
type OpenRequest struct {
	// Window is the defwindow name.
	Window string
	// ID distinguishes multiple instances of the same window. The instance
	// id becomes window or window:id.
	ID string
	// Screen selects an output, empty for the default.
	Screen string
	// Args are open-time values visible inside the window body.
	Args map[string]string
	// Toggle closes the instance instead when it is already open.
	Toggle bool
}

// WindowInfo is one defwindow and its open instances.
type WindowInfo struct {
	Name      string   `json:"name"`
	Instances []string `json:"instances,omitempty"`
}

// Update sets variables to new values and propagates the changes.
func (e *Engine) Update(ctx context.Context, assignments map[string]value.Value) error {
	_, err := call(ctx, e, func() (struct{}, error) {
		for name := range assignments {
			if !e.store.Has(name) {
				return struct{}{}, fmt.Errorf("unknown variable %q", name)
			}
		}
		for name, v := range assignments {
			e.applyUpdate(name, v)
		}
		return struct{}{}, nil
	})
	return err
}

// Poll forces the named poll variables to run their commands now.
func (e *Engine) Poll(ctx context.Context, names []string) error {
	_, err := call(ctx, e, func() (struct{}, error) {
		for _, name := range names {
			def, ok := e.cfg.Vars[name]
			if !ok {
				return struct{}{}, fmt.Errorf("unknown variable %q", name)
			}
			if def.Kind != config.VarPoll {
				return struct{}{}, fmt.Errorf("variable %q is not a poll variable", name)
			}
		}
		for _, name := range names {
			e.sup.Poke(name)
		}
		return struct{}{}, nil
	})
	return err
}

// Open opens a window instance. With Toggle set it closes an already open
// instance instead; the returned flag reports whether the instance is open
// afterwards.
func (e *Engine) Open(ctx context.Context, req OpenRequest) (bool, error) {
	return call(ctx, e, func() (bool, error) {
		instanceID := req.Window
		if req.ID != "" {
			instanceID = req.Window + ":" + req.ID
		}
		if _, open := e.instances[instanceID]; open {
			if req.Toggle {
				e.closeInstance(instanceID)
				return false, nil
			}
			return true, fmt.Errorf("window instance %q is already open", instanceID)
		}
		if err := e.openInstance(req.Window, instanceID, req.Screen, req.Args); err != nil {
			return false, err
		}
		return true, nil
	})
}

// OpenMany opens several windows, each named either "window" or
// "window:id". Args are keyed by the target's instance id; the empty key
// applies to every target, with instance-specific values winning.
// Already-open instances are skipped. Stops at the first failure, leaving
// earlier windows open.
func (e *Engine) OpenMany(ctx context.Context, targets []string, args map[string]map[string]string) error {
	_, err := call(ctx, e, func() (struct{}, error) {
		for _, target := range targets {
			window, id, hasID := strings.Cut(target, ":")
			instanceID := window
			if hasID && id != "" {
				instanceID = window + ":" + id
			}
			if _, open := e.instances[instanceID]; open {
				continue
			}
			var merged map[string]string
			for _, key := range []string{"", instanceID} {
				for k, v := range args[key] {
					if merged == nil {
						merged = make(map[string]string)
					}
					merged[k] = v
				}
			}
			if err := e.openInstance(window, instanceID, "", merged); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	return err
}

// Close closes the named instances and returns the ones that were open.
func (e *Engine) Close(ctx context.Context, instances []string) ([]string, error) {
	return call(ctx, e, func() ([]string, error) {
		var closed []string
		for _, id := range instances {
			if _, open := e.instances[id]; !open {
				continue
			}
			e.closeInstance(id)
			closed = append(closed, id)
		}
		if len(closed) == 0 && len(instances) > 0 {
			return nil, fmt.Errorf("no such open window instance: %v", instances)
		}
		return closed, nil
	})
}

// CloseAll closes every open instance and returns their ids.
func (e *Engine) CloseAll(ctx context.Context) ([]string, error) {
	return call(ctx, e, func() ([]string, error) {
		ids := make([]string, 0, len(e.instances))
		for id := range e.instances {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			e.closeInstance(id)
		}
		return ids, nil
	})
}

// State returns the current variable values. By default only variables some
// open window depends on are included; all reports every variable.
func (e *Engine) State(ctx context.Context, all bool) (map[string]string, error) {
	return call(ctx, e, func() (map[string]string, error) {
		out := make(map[string]string)
		for name, v := range e.store.Snapshot() {
			if all || e.graph.InUse(name) {
				out[name] = v.String()
			}
		}
		return out, nil
	})
}

// Windows lists every defined window and its open instances.
func (e *Engine) Windows(ctx context.Context) ([]WindowInfo, error) {
	return call(ctx, e, func() ([]WindowInfo, error) {
		byWindow := make(map[string][]string)
		for id, st := range e.instances {
			byWindow[st.window] = append(byWindow[st.window], id)
		}
		names := make([]string, 0, len(e.cfg.Windows))
		for name := range e.cfg.Windows {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]WindowInfo, 0, len(names))
		for _, name := range names {
			instances := byWindow[name]
			sort.Strings(instances)
			out = append(out, WindowInfo{Name: name, Instances: instances})
		}
		return out, nil
	})
}

// ConfigFiles returns the files the current configuration was loaded from,
// the include graph flattened in load order.
func (e *Engine) ConfigFiles(ctx context.Context) ([]string, error) {
	return call(ctx, e, func() ([]string, error) {
		out := make([]string, len(e.cfg.Files))
		copy(out, e.cfg.Files)
		return out, nil
	})
}

// openInstance runs on the core goroutine.
func (e *Engine) openInstance(window, instanceID, screen string, rawArgs map[string]string) error {
	win, ok := e.cfg.Windows[window]
	if !ok {
		return fmt.Errorf("unknown window %q", window)
	}
	args := make(map[string]value.Value, len(rawArgs))
	for name, raw := range rawArgs {
		for _, reserved := range config.ReservedWindowArgs {
			if name == reserved {
				return fmt.Errorf("window argument %q is reserved", name)
			}
		}
		args[name] = value.String(raw)
	}
	inst, err := e.builder.Instantiate(win, instanceID, screen, args)
	if err != nil {
		return err
	}
	if err := e.opts.Surface.OpenWindow(e.ctx, inst.Spec); err != nil {
		inst.Teardown()
		return fmt.Errorf("surface rejected window %q: %w", instanceID, err)
	}
	e.instances[instanceID] = &instanceState{inst: inst, window: window, screen: screen, args: args}
	e.syncProcesses()
	ctxlog.FromContext(e.ctx).Info("Window opened.", "instance", instanceID, "window", window)
	return nil
}

// closeInstance runs on the core goroutine.
func (e *Engine) closeInstance(instanceID string) {
	st := e.instances[instanceID]
	st.inst.Teardown()
	delete(e.instances, instanceID)
	delete(e.pending, instanceID)
	if err := e.opts.Surface.CloseWindow(e.ctx, instanceID); err != nil {
		ctxlog.FromContext(e.ctx).Warn("Closing window failed.", "instance", instanceID, "error", err)
	}
	e.syncProcesses()
	ctxlog.FromContext(e.ctx).Info("Window closed.", "instance", instanceID)
}
