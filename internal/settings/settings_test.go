package settings_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vane-widgets/vane/internal/settings"
)

func writeSettings(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vane.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	s, err := settings.Load(filepath.Join(t.TempDir(), "absent.hcl"))
	require.NoError(t, err)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, "text", s.LogFormat)
	assert.Equal(t, 10*time.Second, s.PollTimeout)
	assert.True(t, s.AutoReload)
	assert.False(t, s.LazyListen)
	assert.NotEmpty(t, s.SocketPath)
}

func TestLoadFullFile(t *testing.T) {
	path := writeSettings(t, `
socket_path = "/tmp/custom.sock"
lazy_listen = true
auto_reload = false

log {
  level  = "debug"
  format = "json"
}

renderer {
  command = "vane-render --stdin"
}

scripts {
  poll_timeout = "5s"
  backoff_min  = "100ms"
  backoff_max  = "10s"
  term_grace   = "1s"
}
`)
	s, err := settings.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.sock", s.SocketPath)
	assert.True(t, s.LazyListen)
	assert.False(t, s.AutoReload)
	assert.Equal(t, "debug", s.LogLevel)
	assert.Equal(t, "json", s.LogFormat)
	assert.Equal(t, "vane-render --stdin", s.RendererCommand)
	assert.Equal(t, 5*time.Second, s.PollTimeout)
	assert.Equal(t, 100*time.Millisecond, s.BackoffMin)
	assert.Equal(t, 10*time.Second, s.BackoffMax)
	assert.Equal(t, time.Second, s.TermGrace)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeSettings(t, `
log {
  level = "warn"
}
`)
	s, err := settings.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", s.LogLevel)
	assert.Equal(t, "text", s.LogFormat)
	assert.Equal(t, 10*time.Second, s.PollTimeout)
}

func TestEnvironmentInterpolation(t *testing.T) {
	t.Setenv("VANE_TEST_DIR", "/run/vane-test")
	path := writeSettings(t, `
socket_path = "${env.VANE_TEST_DIR}/control.sock"
`)
	s, err := settings.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/run/vane-test/control.sock", s.SocketPath)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"bad syntax":    `log {`,
		"bad level":     `log { level = "loud" }`,
		"bad format":    `log { format = "xml" }`,
		"bad duration":  `scripts { poll_timeout = "soon" }`,
		"zero duration": `scripts { backoff_min = "0s" }`,
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := settings.Load(writeSettings(t, src))
			require.Error(t, err)
		})
	}
}
