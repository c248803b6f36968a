// Package app assembles the daemon: settings, logger, engine, control
// socket and the optional config file watcher, with a clean shutdown path.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vane-widgets/vane/internal/config"
	"github.com/vane-widgets/vane/internal/ctxlog"
	"github.com/vane-widgets/vane/internal/engine"
	"github.com/vane-widgets/vane/internal/ipc"
	"github.com/vane-widgets/vane/internal/render"
	"github.com/vane-widgets/vane/internal/settings"
	"github.com/vane-widgets/vane/internal/watch"
)

// Config holds the daemon's startup parameters. Zero fields fall back to
// the defaults or to vane.hcl.
type Config struct {
	// ConfigPath is the entry .vane file.
	ConfigPath string
	// SettingsPath is the vane.hcl file.
	SettingsPath string
	// LogLevel and LogFormat override the settings file when non-empty.
	LogLevel  string
	LogFormat string
	// SocketPath overrides the settings file when non-empty.
	SocketPath string
}

// DefaultConfigDir is where configuration lives unless overridden.
func DefaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "vane")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "vane")
}

// App is a fully initialized daemon, ready to Run.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	settings *settings.Settings
	cfg      *config.Config
	cfgPath  string
}

// NewApp loads settings and the widget configuration. It panics on startup
// errors; the caller recovers and turns the panic into an exit message.
func NewApp(outW io.Writer, appCfg *Config) *App {
	if appCfg.ConfigPath == "" {
		appCfg.ConfigPath = filepath.Join(DefaultConfigDir(), "vane.vane")
	}
	if appCfg.SettingsPath == "" {
		appCfg.SettingsPath = filepath.Join(DefaultConfigDir(), "vane.hcl")
	}

	st, err := settings.Load(appCfg.SettingsPath)
	if err != nil {
		panic(err)
	}
	if appCfg.LogLevel != "" {
		st.LogLevel = appCfg.LogLevel
	}
	if appCfg.LogFormat != "" {
		st.LogFormat = appCfg.LogFormat
	}
	if appCfg.SocketPath != "" {
		st.SocketPath = appCfg.SocketPath
	}

	logger := newLogger(st.LogLevel, st.LogFormat, outW)
	logger.Debug("Settings loaded.", "path", appCfg.SettingsPath)

	loader := &config.Loader{}
	cfg, err := loader.Load(appCfg.ConfigPath)
	if err != nil {
		panic(fmt.Errorf("loading configuration: %w", err))
	}
	logger.Debug("Configuration loaded.",
		"path", appCfg.ConfigPath, "files", len(cfg.Files),
		"vars", len(cfg.Vars), "widgets", len(cfg.Widgets), "windows", len(cfg.Windows))

	return &App{
		outW:     outW,
		logger:   logger,
		settings: st,
		cfg:      cfg,
		cfgPath:  appCfg.ConfigPath,
	}
}

// Settings exposes the resolved settings, primarily for the CLI.
func (a *App) Settings() *settings.Settings { return a.settings }

// Run starts the engine and the control socket and blocks until the context
// ends or a client sends kill.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	surface, closeSurface, err := a.buildSurface(ctx)
	if err != nil {
		return err
	}
	defer closeSurface()

	eng := engine.New(ctx, a.cfg, engine.Options{
		Settings:   a.settings,
		Surface:    surface,
		Loader:     &config.Loader{},
		ConfigPath: a.cfgPath,
	})
	defer eng.Stop()

	server := ipc.NewServer(eng, a.settings.SocketPath)
	server.OnKill = cancel
	if err := server.Listen(); err != nil {
		return err
	}
	defer server.Close()

	if a.settings.AutoReload {
		if err := a.startWatcher(ctx, eng); err != nil {
			a.logger.Warn("Auto reload disabled.", "error", err)
		}
	}

	a.logger.Info("Daemon ready.", "socket", a.settings.SocketPath)
	return server.Serve(ctx)
}

func (a *App) buildSurface(ctx context.Context) (render.Surface, func(), error) {
	if a.settings.RendererCommand == "" {
		return render.LogSurface{}, func() {}, nil
	}
	pipe, err := render.NewPipeSurface(ctx, a.settings.RendererCommand)
	if err != nil {
		return nil, nil, fmt.Errorf("starting renderer: %w", err)
	}
	a.logger.Info("Renderer started.", "command", a.settings.RendererCommand)
	return pipe, func() { pipe.Close() }, nil
}

func (a *App) startWatcher(ctx context.Context, eng *engine.Engine) error {
	var w *watch.Watcher
	w, err := watch.New(func() {
		a.logger.Info("Configuration changed on disk, reloading.")
		if err := eng.Reload(ctx); err != nil {
			a.logger.Warn("Auto reload failed.", "error", err)
			return
		}
		// Includes may have changed the file set.
		if files, err := eng.ConfigFiles(ctx); err == nil {
			if err := w.SetFiles(files); err != nil {
				a.logger.Warn("Updating watched files failed.", "error", err)
			}
		}
	}, 0)
	if err != nil {
		return err
	}
	files, err := eng.ConfigFiles(ctx)
	if err != nil {
		return err
	}
	if err := w.SetFiles(files); err != nil {
		return err
	}
	go w.Run(ctx)
	a.logger.Debug("Watching configuration files.", "count", len(files))
	return nil
}
