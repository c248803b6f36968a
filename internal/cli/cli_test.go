package cli_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vane-widgets/vane/internal/cli"
)

func TestNoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, cli.Run(nil, &out))
	assert.Contains(t, out.String(), "Usage:")
}

func TestUnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := cli.Run([]string{"explode"}, &out)
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestOpenManyMalformedArg(t *testing.T) {
	var out bytes.Buffer
	err := cli.Run([]string{"open-many", "--arg", "noequals", "w"}, &out)
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, exitErr.Message, "[id:]name=value")
}

func TestOpenRequiresWindowName(t *testing.T) {
	var out bytes.Buffer
	err := cli.Run([]string{"open"}, &out)
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

// TestDaemonEndToEnd drives a real daemon through the CLI: start it, talk
// to it over the socket, then kill it.
func TestDaemonEndToEnd(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "vane.vane")
	settingsPath := filepath.Join(dir, "vane.hcl")
	socket := filepath.Join(dir, "vane.sock")
	require.NoError(t, os.WriteFile(configPath, []byte(`
		(defvar greeting "hello")
		(defwindow bar (label :text {greeting}))
	`), 0o644))
	require.NoError(t, os.WriteFile(settingsPath, []byte(`
auto_reload = false
log {
  level = "warn"
}
`), 0o644))

	var daemonOut bytes.Buffer
	var wg sync.WaitGroup
	var daemonErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		daemonErr = cli.Run([]string{
			"daemon", "-c", configPath, "--settings", settingsPath, "--socket", socket,
		}, &daemonOut)
	}()

	run := func(args ...string) (string, error) {
		// Flags go before positional arguments.
		full := append([]string{args[0], "--socket", socket}, args[1:]...)
		var out bytes.Buffer
		err := cli.Run(full, &out)
		return out.String(), err
	}

	require.Eventually(t, func() bool {
		_, err := run("ping")
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	out, err := run("open", "bar")
	require.NoError(t, err)
	assert.Contains(t, out, "opened")

	require.NoError(t, errFrom(run("update", "greeting=bye")))

	out, err = run("state", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "greeting: bye")

	out, err = run("windows")
	require.NoError(t, err)
	assert.Contains(t, out, "*bar: bar")

	out, err = run("close-all")
	require.NoError(t, err)
	assert.Contains(t, out, "closed 1 window(s)")

	require.NoError(t, errFrom(run("kill")))
	wg.Wait()
	require.NoError(t, daemonErr)

	// The socket is gone, so clients now fail cleanly.
	_, err = run("ping")
	var exitErr *cli.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Code)
}

func errFrom(_ string, err error) error { return err }
