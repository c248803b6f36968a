package supervisor

import (
	"bufio"
	"context"
	"time"

	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/ctxlog"
	"github.com/vane-widgets/vane/internal/value"
)

// runListener keeps the variable's command alive, emitting one update per
// stdout line. Exits restart the command with exponential backoff; a run
// that survives past the backoff ceiling resets the delay.
func (s *Supervisor) runListener(ctx context.Context, v *config.Var, w *worker) {
	defer close(w.done)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Listener started.")

	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			logger.Debug("Listener stopped.")
			return
		}
		started := time.Now()
		err := s.listenOnce(ctx, v)
		if ctx.Err() != nil {
			logger.Debug("Listener stopped.")
			return
		}
		if err != nil {
			s.opts.Report(&ProcessError{Var: v.Name, Cmd: v.Command, Err: err})
		}
		if time.Since(started) > s.opts.BackoffMax {
			backoff = s.opts.BackoffMin
		}
		logger.Debug("Listener exited, restarting.", "backoff", backoff)
		select {
		case <-ctx.Done():
			logger.Debug("Listener stopped.")
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.opts.BackoffMax {
			backoff = s.opts.BackoffMax
		}
	}
}

// listenOnce runs the command to completion, streaming lines as updates.
func (s *Supervisor) listenOnce(ctx context.Context, v *config.Var) error {
	cmd := shellCommand(v.Command, nil)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	waited := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		close(waited)
		done <- err
	}()
	go func() {
		select {
		case <-ctx.Done():
			terminate(cmd, s.opts.Grace, waited)
		case <-waited:
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.opts.Emit(v.Name, value.String(scanner.Text()))
	}
	return <-done
}
