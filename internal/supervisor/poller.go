package supervisor

import (
	"context"
	"time"

	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/ctxlog"
	"github.com/vane-widgets/vane/internal/value"
)

// runPoller executes the variable's command on its interval. Runs never
// overlap: a tick arriving while the command is still in flight is dropped,
// so a slow script degrades to a slower effective rate instead of piling up.
func (s *Supervisor) runPoller(ctx context.Context, v *config.Var, w *worker, open bool) {
	defer close(w.done)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Poller started.", "interval", v.Interval, "gate_open", open)

	ticker := time.NewTicker(v.Interval)
	defer ticker.Stop()
	poll := func() {
		if !open {
			return
		}
		timeout := v.Timeout
		if timeout <= 0 {
			timeout = s.opts.DefaultTimeout
		}
		runCtx, cancel := context.WithTimeout(ctx, timeout)
		out, err := runOnce(runCtx, v.Name, v.Command)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.opts.Report(err)
			return
		}
		s.opts.Emit(v.Name, value.String(out))
		// Drop a tick that fired while the command ran.
		select {
		case <-ticker.C:
		default:
		}
	}

	poll()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Poller stopped.")
			return
		case open = <-w.gate:
			logger.Debug("Poll gate switched.", "open", open)
			if open {
				poll()
			}
		case <-w.poke:
			poll()
		case <-ticker.C:
			poll()
		}
	}
}
