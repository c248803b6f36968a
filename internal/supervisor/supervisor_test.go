package supervisor

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/value"
)

type sink struct {
	mu     sync.Mutex
	values []string
	errs   []error
}

func (c *sink) emit(name string, v value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, name+"="+v.String())
}

func (c *sink) report(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *sink) valueCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.values)
}

func (c *sink) errCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.errs)
}

func (c *sink) first() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.values) == 0 {
		return ""
	}
	return c.values[0]
}

func newTestSupervisor(t *testing.T, c *sink) *Supervisor {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := New(ctx, Options{
		DefaultTimeout: 5 * time.Second,
		BackoffMin:     10 * time.Millisecond,
		BackoffMax:     100 * time.Millisecond,
		Grace:          200 * time.Millisecond,
		Emit:           c.emit,
		Report:         c.report,
	})
	t.Cleanup(s.StopAll)
	return s
}

func TestPollEmitsOutput(t *testing.T) {
	c := &sink{}
	s := newTestSupervisor(t, c)

	s.Start(&config.Var{
		Name: "greeting", Kind: config.VarPoll,
		Command: "echo hello", Interval: time.Hour,
	})
	require.Eventually(t, func() bool { return c.valueCount() >= 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "greeting=hello", c.first())
	assert.True(t, s.Running("greeting"))
}

func TestPollReportsFailure(t *testing.T) {
	c := &sink{}
	s := newTestSupervisor(t, c)

	s.Start(&config.Var{
		Name: "broken", Kind: config.VarPoll,
		Command: "echo doom >&2; exit 3", Interval: time.Hour,
	})
	require.Eventually(t, func() bool { return c.errCount() >= 1 }, 3*time.Second, 10*time.Millisecond)

	c.mu.Lock()
	defer c.mu.Unlock()
	var perr *ProcessError
	require.ErrorAs(t, c.errs[0], &perr)
	assert.Equal(t, "broken", perr.Var)
	assert.Contains(t, perr.Error(), "doom")
	assert.Empty(t, c.values)
}

func TestPollTimeout(t *testing.T) {
	c := &sink{}
	s := newTestSupervisor(t, c)

	s.Start(&config.Var{
		Name: "slow", Kind: config.VarPoll,
		Command: "sleep 30", Interval: time.Hour,
		Timeout: 50 * time.Millisecond,
	})
	require.Eventually(t, func() bool { return c.errCount() >= 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestPokeForcesPoll(t *testing.T) {
	c := &sink{}
	s := newTestSupervisor(t, c)

	s.Start(&config.Var{
		Name: "n", Kind: config.VarPoll,
		Command: "echo tick", Interval: time.Hour,
	})
	require.Eventually(t, func() bool { return c.valueCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	s.Poke("n")
	require.Eventually(t, func() bool { return c.valueCount() == 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestGateBlocksPolling(t *testing.T) {
	c := &sink{}
	s := newTestSupervisor(t, c)

	s.Start(&config.Var{
		Name: "gated", Kind: config.VarPoll,
		Command: "echo v", Interval: time.Hour,
	})
	require.Eventually(t, func() bool { return c.valueCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	s.SetGate("gated", false)
	time.Sleep(50 * time.Millisecond) // let the gate land before poking
	s.Poke("gated")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, c.valueCount(), "closed gate must swallow polls")

	// Reopening polls immediately.
	s.SetGate("gated", true)
	require.Eventually(t, func() bool { return c.valueCount() == 2 }, 3*time.Second, 10*time.Millisecond)
}

func TestListenerStreamsLines(t *testing.T) {
	c := &sink{}
	s := newTestSupervisor(t, c)

	s.Start(&config.Var{
		Name: "stream", Kind: config.VarListen,
		Command: "printf 'one\ntwo\n'; sleep 60",
	})
	require.Eventually(t, func() bool { return c.valueCount() >= 2 }, 3*time.Second, 10*time.Millisecond)

	c.mu.Lock()
	assert.Equal(t, "stream=one", c.values[0])
	assert.Equal(t, "stream=two", c.values[1])
	c.mu.Unlock()

	s.Stop("stream")
	assert.False(t, s.Running("stream"))
}

func TestListenerRestarts(t *testing.T) {
	c := &sink{}
	s := newTestSupervisor(t, c)

	// The command exits after one line, so repeated values prove restarts.
	s.Start(&config.Var{
		Name: "flappy", Kind: config.VarListen,
		Command: "echo beat",
	})
	require.Eventually(t, func() bool { return c.valueCount() >= 3 }, 5*time.Second, 10*time.Millisecond)
}

func TestStopTerminatesProcessGroup(t *testing.T) {
	c := &sink{}
	s := newTestSupervisor(t, c)

	s.Start(&config.Var{
		Name: "forever", Kind: config.VarListen,
		Command: "echo up; sleep 600",
	})
	require.Eventually(t, func() bool { return c.valueCount() >= 1 }, 3*time.Second, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Stop("forever")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return, process group was not terminated")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	c := &sink{}
	s := newTestSupervisor(t, c)

	v := &config.Var{Name: "once", Kind: config.VarPoll, Command: "echo x", Interval: time.Hour}
	s.Start(v)
	s.Start(v)
	require.Eventually(t, func() bool { return c.valueCount() >= 1 }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, c.valueCount())

	// Basic variables never get a runner.
	s.Start(&config.Var{Name: "plain", Kind: config.VarBasic})
	assert.False(t, s.Running("plain"))
}

func TestRunOnChange(t *testing.T) {
	c := &sink{}
	s := newTestSupervisor(t, c)

	dir := t.TempDir()
	v := &config.Var{Name: "watched", Kind: config.VarListen, Command: "true", OnChange: `echo "$VANE_VALUE" > ` + dir + `/out`}
	s.RunOnChange(v, value.String("fresh"))

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(dir + "/out")
		return err == nil && string(data) == "fresh\n"
	}, 3*time.Second, 10*time.Millisecond)
}
