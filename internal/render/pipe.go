package render

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/vane-widgets/vane/internal/ctxlog"
	"golang.org/x/sys/unix"
)

// PipeSurface spawns an external renderer process and streams operations to
// its stdin as one JSON object per line. The renderer owns all drawing; the
// daemon only describes trees and patches.
type PipeSurface struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	in     io.WriteCloser
	enc    *json.Encoder
	waited chan struct{}
}

// closeGrace bounds how long Close waits for the renderer to drain its
// stdin and exit before its process group is signalled.
const closeGrace = 2 * time.Second

type pipeMessage struct {
	Op       string      `json:"op"`
	Instance string      `json:"instance,omitempty"`
	Spec     *WindowSpec `json:"spec,omitempty"`
	Patches  []Patch     `json:"patches,omitempty"`
}

// NewPipeSurface starts the renderer command via `sh -c`. The process lives
// until Close; it exiting early surfaces as write errors on later calls.
func NewPipeSurface(ctx context.Context, command string) (*PipeSurface, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting renderer %q: %w", command, err)
	}
	ctxlog.FromContext(ctx).Info("Renderer started.", "command", command, "pid", cmd.Process.Pid)
	waited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		close(waited)
		if err != nil {
			ctxlog.FromContext(ctx).Warn("Renderer exited.", "error", err)
		}
	}()
	return &PipeSurface{cmd: cmd, in: in, enc: json.NewEncoder(in), waited: waited}, nil
}

func (s *PipeSurface) send(msg pipeMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(msg); err != nil {
		return fmt.Errorf("writing to renderer: %w", err)
	}
	return nil
}

func (s *PipeSurface) OpenWindow(_ context.Context, spec *WindowSpec) error {
	return s.send(pipeMessage{Op: "open-window", Instance: spec.Instance, Spec: spec})
}

func (s *PipeSurface) ApplyPatches(_ context.Context, instance string, patches []Patch) error {
	return s.send(pipeMessage{Op: "apply-patches", Instance: instance, Patches: patches})
}

func (s *PipeSurface) CloseWindow(_ context.Context, instance string) error {
	return s.send(pipeMessage{Op: "close-window", Instance: instance})
}

// Close ends the renderer's stdin, waits for it to drain buffered input and
// exit, and signals its process group if it does not.
func (s *PipeSurface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.in.Close()
	select {
	case <-s.waited:
		return err
	case <-time.After(closeGrace):
	}
	if s.cmd.Process != nil {
		_ = unix.Kill(-s.cmd.Process.Pid, unix.SIGTERM)
	}
	return err
}
