// Package cli parses command-line arguments and runs either the daemon or
// one of the client commands that talk to it over the control socket.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/vane-widgets/vane/internal/app"
	"github.com/vane-widgets/vane/internal/ipc"
	"github.com/vane-widgets/vane/internal/settings"
)

// ExitError carries a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

const usageText = `vane - a reactive widget daemon.

Usage:
  vane daemon [options]          Run the daemon.
  vane open WINDOW [options]     Open a window.
  vane open-many WINDOW[:ID]...  Open several windows, --arg [ID:]K=V each.
  vane close INSTANCE...         Close window instances.
  vane close-all                 Close every open window.
  vane update NAME=VALUE...      Set variables.
  vane poll NAME...              Force poll variables to refresh.
  vane state [--all]             Print variable values.
  vane windows                   List windows and open instances.
  vane reload                    Reload the configuration.
  vane ping                      Check the daemon is running.
  vane kill                      Stop the daemon.

Global options:
  --socket PATH   Control socket path (default from vane.hcl).
`

// Run dispatches the command line. outW receives command output; errors
// come back as ExitError when a specific exit code applies.
func Run(args []string, outW io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(outW, usageText)
		return nil
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help", "-h", "--help":
		fmt.Fprint(outW, usageText)
		return nil
	case "daemon":
		return runDaemon(rest, outW)
	case "open":
		return runOpen(rest, outW)
	case "open-many":
		return runOpenMany(rest, outW)
	case "close":
		return withClient(rest, outW, 0, func(ctx context.Context, c *ipc.Client, args []string) error {
			if len(args) == 0 {
				return usageError("close needs at least one instance id")
			}
			closed, err := c.CloseWindows(ctx, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(outW, "closed: %s\n", strings.Join(closed, ", "))
			return nil
		})
	case "close-all":
		return withClient(rest, outW, 0, func(ctx context.Context, c *ipc.Client, _ []string) error {
			closed, err := c.CloseAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(outW, "closed %d window(s)\n", len(closed))
			return nil
		})
	case "update":
		return withClient(rest, outW, 0, func(ctx context.Context, c *ipc.Client, args []string) error {
			vars, err := parseAssignments(args)
			if err != nil {
				return err
			}
			return c.Update(ctx, vars)
		})
	case "poll":
		return withClient(rest, outW, 0, func(ctx context.Context, c *ipc.Client, args []string) error {
			if len(args) == 0 {
				return usageError("poll needs at least one variable name")
			}
			return c.Poll(ctx, args)
		})
	case "state":
		return runState(rest, outW)
	case "windows":
		return withClient(rest, outW, 0, func(ctx context.Context, c *ipc.Client, _ []string) error {
			wins, err := c.Windows(ctx)
			if err != nil {
				return err
			}
			for _, w := range wins {
				if len(w.Instances) == 0 {
					fmt.Fprintf(outW, "%s\n", w.Name)
					continue
				}
				fmt.Fprintf(outW, "*%s: %s\n", w.Name, strings.Join(w.Instances, ", "))
			}
			return nil
		})
	case "reload":
		return withClient(rest, outW, 30*time.Second, func(ctx context.Context, c *ipc.Client, _ []string) error {
			return c.Reload(ctx)
		})
	case "ping":
		return withClient(rest, outW, 0, func(ctx context.Context, c *ipc.Client, _ []string) error {
			if err := c.Ping(ctx); err != nil {
				return err
			}
			fmt.Fprintln(outW, "pong")
			return nil
		})
	case "kill":
		return withClient(rest, outW, 0, func(ctx context.Context, c *ipc.Client, _ []string) error {
			return c.Kill(ctx)
		})
	}
	return usageError("unknown command %q, see `vane help`", cmd)
}

func runDaemon(args []string, outW io.Writer) error {
	fs := flag.NewFlagSet("vane daemon", flag.ContinueOnError)
	fs.SetOutput(outW)
	configFlag := fs.String("config", "", "Path to the entry .vane file.")
	cFlag := fs.String("c", "", "Path to the entry .vane file (shorthand).")
	settingsFlag := fs.String("settings", "", "Path to vane.hcl.")
	socketFlag := fs.String("socket", "", "Control socket path.")
	logFormatFlag := fs.String("log-format", "", "Log output format: 'text' or 'json'.")
	logLevelFlag := fs.String("log-level", "", "Log level: 'debug', 'info', 'warn' or 'error'.")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return usageError("%v", err)
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = *cFlag
	}
	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return usageError("invalid log-level: must be 'debug', 'info', 'warn' or 'error'")
	}
	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "" && logFormat != "text" && logFormat != "json" {
		return usageError("invalid log-format: must be 'text' or 'json'")
	}

	daemon := app.NewApp(outW, &app.Config{
		ConfigPath:   configPath,
		SettingsPath: *settingsFlag,
		LogLevel:     logLevel,
		LogFormat:    logFormat,
		SocketPath:   *socketFlag,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return daemon.Run(ctx)
}

func runOpen(args []string, outW io.Writer) error {
	fs := flag.NewFlagSet("vane open", flag.ContinueOnError)
	fs.SetOutput(outW)
	socketFlag := fs.String("socket", "", "Control socket path.")
	idFlag := fs.String("id", "", "Instance id, for opening a window twice.")
	screenFlag := fs.String("screen", "", "Output to open the window on.")
	toggleFlag := fs.Bool("toggle", false, "Close the window when it is already open.")
	var argFlags argList
	fs.Var(&argFlags, "arg", "Window argument as name=value, repeatable.")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return usageError("%v", err)
	}
	if fs.NArg() != 1 {
		return usageError("open takes exactly one window name")
	}
	var windowArgs map[string]string
	if len(argFlags) > 0 {
		var err error
		windowArgs, err = parseAssignments(argFlags)
		if err != nil {
			return err
		}
	}

	ctx, cancel := commandContext(0)
	defer cancel()
	client, err := dial(ctx, *socketFlag)
	if err != nil {
		return err
	}
	defer client.Close()

	opened, err := client.Open(ctx, ipc.OpenParams{
		Window: fs.Arg(0),
		ID:     *idFlag,
		Screen: *screenFlag,
		Args:   windowArgs,
		Toggle: *toggleFlag,
	})
	if err != nil {
		return err
	}
	if opened {
		fmt.Fprintln(outW, "opened")
	} else {
		fmt.Fprintln(outW, "closed")
	}
	return nil
}

func runOpenMany(args []string, outW io.Writer) error {
	fs := flag.NewFlagSet("vane open-many", flag.ContinueOnError)
	fs.SetOutput(outW)
	socketFlag := fs.String("socket", "", "Control socket path.")
	var argFlags argList
	fs.Var(&argFlags, "arg", "Window argument as [id:]name=value, repeatable.")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return usageError("%v", err)
	}
	if fs.NArg() == 0 {
		return usageError("open-many needs at least one window name")
	}
	windowArgs, err := parseScopedAssignments(argFlags)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(0)
	defer cancel()
	client, err := dial(ctx, *socketFlag)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.OpenMany(ctx, fs.Args(), windowArgs)
}

func runState(args []string, outW io.Writer) error {
	fs := flag.NewFlagSet("vane state", flag.ContinueOnError)
	fs.SetOutput(outW)
	socketFlag := fs.String("socket", "", "Control socket path.")
	allFlag := fs.Bool("all", false, "Include variables no open window uses.")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return usageError("%v", err)
	}

	ctx, cancel := commandContext(0)
	defer cancel()
	client, err := dial(ctx, *socketFlag)
	if err != nil {
		return err
	}
	defer client.Close()

	vars, err := client.State(ctx, *allFlag)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(outW, "%s: %s\n", name, vars[name])
	}
	return nil
}

// withClient handles the common shape of client commands: a --socket flag,
// a dial and one call.
func withClient(args []string, outW io.Writer, timeout time.Duration, fn func(context.Context, *ipc.Client, []string) error) error {
	fs := flag.NewFlagSet("vane", flag.ContinueOnError)
	fs.SetOutput(outW)
	socketFlag := fs.String("socket", "", "Control socket path.")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return usageError("%v", err)
	}

	ctx, cancel := commandContext(timeout)
	defer cancel()
	client, err := dial(ctx, *socketFlag)
	if err != nil {
		return err
	}
	defer client.Close()
	return fn(ctx, client, fs.Args())
}

func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

func dial(ctx context.Context, socketOverride string) (*ipc.Client, error) {
	path := socketOverride
	if path == "" {
		st, err := settings.Load(filepath.Join(app.DefaultConfigDir(), "vane.hcl"))
		if err != nil {
			return nil, err
		}
		path = st.SocketPath
	}
	client, err := ipc.Dial(ctx, path)
	if err != nil {
		return nil, &ExitError{Code: 1, Message: fmt.Sprintf("cannot reach the daemon: %v", err)}
	}
	return client, nil
}

func parseAssignments(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, usageError("expected at least one NAME=VALUE pair")
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, val, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, usageError("malformed assignment %q, expected NAME=VALUE", pair)
		}
		out[name] = val
	}
	return out, nil
}

// argList collects repeated --arg flags.
// parseScopedAssignments parses [id:]name=value pairs into per-instance
// argument maps; pairs without an id prefix land under the empty key and
// apply to every window.
func parseScopedAssignments(pairs []string) (map[string]map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]map[string]string)
	for _, pair := range pairs {
		key, val, ok := strings.Cut(pair, "=")
		if !ok || key == "" || strings.HasSuffix(key, ":") {
			return nil, usageError("malformed argument %q, expected [id:]name=value", pair)
		}
		id, name := "", key
		if i := strings.LastIndex(key, ":"); i >= 0 {
			id, name = key[:i], key[i+1:]
		}
		m := out[id]
		if m == nil {
			m = make(map[string]string)
			out[id] = m
		}
		m[name] = val
	}
	return out, nil
}

type argList []string

func (a *argList) String() string { return strings.Join(*a, ",") }

func (a *argList) Set(v string) error {
	*a = append(*a, v)
	return nil
}
