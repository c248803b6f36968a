package supervisor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ProcessError reports a failed script command.
type ProcessError struct {
	Var string
	Cmd string
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("script for variable %q (%s): %v", e.Var, e.Cmd, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// shellCommand builds an `sh -c` invocation in its own process group, so that
// termination reaches the whole pipeline a script may have spawned.
func shellCommand(cmd string, extraEnv []string) *exec.Cmd {
	c := exec.Command("sh", "-c", cmd)
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if len(extraEnv) > 0 {
		c.Env = append(c.Environ(), extraEnv...)
	}
	return c
}

// terminate stops a started command: SIGTERM to the process group, a bounded
// grace period, then SIGKILL. Safe to call after the process already exited.
func terminate(c *exec.Cmd, grace time.Duration, waited <-chan struct{}) {
	if c.Process == nil {
		return
	}
	pgid := -c.Process.Pid
	_ = unix.Kill(pgid, unix.SIGTERM)
	select {
	case <-waited:
		return
	case <-time.After(grace):
	}
	_ = unix.Kill(pgid, unix.SIGKILL)
}

// runOnce executes cmd and returns its stdout with the trailing newline
// stripped. The context bounds the run; on expiry the process group is
// killed and a ProcessError is returned.
func runOnce(ctx context.Context, varName, cmd string) (string, error) {
	c := shellCommand(cmd, nil)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Start(); err != nil {
		return "", &ProcessError{Var: varName, Cmd: cmd, Err: err}
	}
	waited := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		err := c.Wait()
		close(waited)
		done <- err
	}()

	select {
	case <-ctx.Done():
		terminate(c, time.Second, waited)
		<-done
		return "", &ProcessError{Var: varName, Cmd: cmd, Err: ctx.Err()}
	case err := <-done:
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			return "", &ProcessError{Var: varName, Cmd: cmd, Err: err}
		}
	}
	return strings.TrimRight(stdout.String(), "\n"), nil
}
