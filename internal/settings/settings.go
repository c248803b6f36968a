// Package settings loads the daemon's own configuration from vane.hcl.
// Widget definitions live in .vane files; this file only tunes the daemon:
// logging, the control socket, the renderer command and script process
// behaviour. A missing file yields the defaults.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// Settings is the resolved daemon configuration.
type Settings struct {
	// SocketPath is the unix control socket the CLI talks to.
	SocketPath string
	LogLevel   string
	LogFormat  string
	// RendererCommand is the subprocess that draws windows. Empty means
	// window state is only logged.
	RendererCommand string
	// PollTimeout bounds one poll script run.
	PollTimeout time.Duration
	// BackoffMin and BackoffMax bound listener restart delays.
	BackoffMin time.Duration
	BackoffMax time.Duration
	// TermGrace is how long a script gets between SIGTERM and SIGKILL.
	TermGrace time.Duration
	// LazyListen delays starting listen scripts until a window uses them.
	LazyListen bool
	// AutoReload reloads the configuration when its files change on disk.
	AutoReload bool
}

// Default returns the settings used when vane.hcl is absent.
func Default() *Settings {
	return &Settings{
		SocketPath:  DefaultSocketPath(),
		LogLevel:    "info",
		LogFormat:   "text",
		PollTimeout: 10 * time.Second,
		BackoffMin:  250 * time.Millisecond,
		BackoffMax:  30 * time.Second,
		TermGrace:   2 * time.Second,
		AutoReload:  true,
	}
}

// DefaultSocketPath places the socket under XDG_RUNTIME_DIR when set.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "vane", "vane.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("vane-%d.sock", os.Getuid()))
}

type hclFile struct {
	SocketPath *string      `hcl:"socket_path,optional"`
	LazyListen *bool        `hcl:"lazy_listen,optional"`
	AutoReload *bool        `hcl:"auto_reload,optional"`
	Log        *hclLog      `hcl:"log,block"`
	Renderer   *hclRenderer `hcl:"renderer,block"`
	Scripts    *hclScripts  `hcl:"scripts,block"`
}

type hclLog struct {
	Level  *string `hcl:"level,optional"`
	Format *string `hcl:"format,optional"`
}

type hclRenderer struct {
	Command string `hcl:"command"`
}

type hclScripts struct {
	PollTimeout *string `hcl:"poll_timeout,optional"`
	BackoffMin  *string `hcl:"backoff_min,optional"`
	BackoffMax  *string `hcl:"backoff_max,optional"`
	TermGrace   *string `hcl:"term_grace,optional"`
}

// Load reads path and merges it over the defaults. A missing file is not an
// error. Expressions may reference environment variables as env.NAME.
func Load(path string) (*Settings, error) {
	s := Default()
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}

	var raw hclFile
	diags = gohcl.DecodeBody(file.Body, evalContext(), &raw)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", path, diags)
	}
	if err := s.apply(&raw); err != nil {
		return nil, fmt.Errorf("in %s: %w", path, err)
	}
	return s, nil
}

// evalContext exposes the process environment to HCL expressions.
func evalContext() *hcl.EvalContext {
	env := map[string]cty.Value{}
	for _, entry := range os.Environ() {
		name, val, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = cty.StringVal(val)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(env)},
	}
}

func (s *Settings) apply(raw *hclFile) error {
	if raw.SocketPath != nil {
		s.SocketPath = *raw.SocketPath
	}
	if raw.LazyListen != nil {
		s.LazyListen = *raw.LazyListen
	}
	if raw.AutoReload != nil {
		s.AutoReload = *raw.AutoReload
	}
	if raw.Log != nil {
		if raw.Log.Level != nil {
			switch *raw.Log.Level {
			case "debug", "info", "warn", "error":
				s.LogLevel = *raw.Log.Level
			default:
				return fmt.Errorf("unknown log level %q", *raw.Log.Level)
			}
		}
		if raw.Log.Format != nil {
			switch *raw.Log.Format {
			case "text", "json":
				s.LogFormat = *raw.Log.Format
			default:
				return fmt.Errorf("unknown log format %q", *raw.Log.Format)
			}
		}
	}
	if raw.Renderer != nil {
		s.RendererCommand = raw.Renderer.Command
	}
	if raw.Scripts != nil {
		for _, d := range []struct {
			name string
			src  *string
			dst  *time.Duration
		}{
			{"poll_timeout", raw.Scripts.PollTimeout, &s.PollTimeout},
			{"backoff_min", raw.Scripts.BackoffMin, &s.BackoffMin},
			{"backoff_max", raw.Scripts.BackoffMax, &s.BackoffMax},
			{"term_grace", raw.Scripts.TermGrace, &s.TermGrace},
		} {
			if d.src == nil {
				continue
			}
			dur, err := time.ParseDuration(*d.src)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", d.name, err)
			}
			if dur <= 0 {
				return fmt.Errorf("%s must be positive, got %s", d.name, dur)
			}
			*d.dst = dur
		}
	}
	return nil
}
