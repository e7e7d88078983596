package app

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/dshills/plughost/internal/config"
	"github.com/dshills/plughost/internal/plugin"
	plua "github.com/dshills/plughost/internal/plugin/lua"
	"github.com/dshills/plughost/internal/plugin/rpc"
)

// Options configures the application.
type Options struct {
	// ConfigPath is the path to the configuration file.
	ConfigPath string

	// PluginRoot overrides the configured plugin root.
	PluginRoot string

	// LogLevel overrides the configured logging verbosity.
	LogLevel string

	// LogOutput receives log records. Defaults to os.Stderr.
	LogOutput io.Writer
}

// Application owns the plugin runner and hands out its bridge.
type Application struct {
	opts   Options
	config *config.Config
	logger *slog.Logger

	runner   *rpc.Runner
	bridge   *rpc.Bridge
	failures []plugin.LoadFailure
	cancel   context.CancelFunc

	shutdownOnce sync.Once
	shutdownErr  error
}

// New loads the configuration, discovers plugins and starts the runner.
// The runner stops when ctx is cancelled or Shutdown is called.
func New(ctx context.Context, opts Options) (*Application, error) {
	app := &Application{opts: opts}

	// 1. Config
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}
	if opts.PluginRoot != "" {
		cfg.Plugins.Root = opts.PluginRoot
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, &InitError{Component: "config", Err: err}
	}
	app.config = cfg

	// 2. Logger
	logger, err := NewLogger(cfg.Logging, opts.LogOutput)
	if err != nil {
		return nil, &InitError{Component: "logger", Err: err}
	}
	app.logger = logger
	if cfg.Source != "" {
		logger.Debug("configuration loaded", "path", cfg.Source)
	}
	for _, name := range cfg.UnknownEnv {
		logger.Warn("ignoring unknown environment variable", "name", name)
	}

	// 3. Plugins
	policy, err := plugin.ParseLoadPolicy(cfg.Plugins.LoadPolicy)
	if err != nil {
		return nil, &InitError{Component: "plugins", Err: err}
	}
	reg, err := plugin.Discover(ctx, cfg.Plugins.Root,
		plugin.WithLoadPolicy(policy),
		plugin.WithEntryPoint(cfg.Plugins.EntryPoint),
		plugin.WithExecutionTimeout(cfg.Runtime.ExecutionTimeout.Std()),
		plugin.WithLimits(vmLimits(cfg.Runtime)),
		plugin.WithLogger(logger),
	)
	if err != nil {
		return nil, &InitError{Component: "plugins", Err: err}
	}
	app.failures = reg.Failures()
	logger.Info("plugins discovered", "root", reg.Root(), "loaded", reg.Len(), "failed", len(app.failures))

	// 4. Runner and bridge
	ch := rpc.NewChannels(cfg.Runtime.QueueSize)
	app.runner = rpc.NewRunner(reg, ch,
		rpc.WithRunnerLogger(logger),
		rpc.WithEntryPoint(cfg.Plugins.EntryPoint),
		rpc.WithExecutionTimeout(cfg.Runtime.ExecutionTimeout.Std()),
	)
	app.bridge = rpc.NewBridge(ch,
		rpc.WithCallTimeout(cfg.Runtime.CallTimeout.Std()),
		rpc.WithBridgeLogger(logger),
	)

	runCtx, cancel := context.WithCancel(ctx)
	app.cancel = cancel
	go func() {
		if err := app.runner.Run(runCtx); err != nil && runCtx.Err() == nil {
			logger.Error("runner stopped", "error", err)
		}
	}()

	return app, nil
}

// Config returns the resolved configuration.
func (app *Application) Config() *config.Config {
	return app.config
}

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger {
	return app.logger
}

// Bridge returns the bridge to the plugin runner. It is safe for
// concurrent use.
func (app *Application) Bridge() *rpc.Bridge {
	return app.bridge
}

// Failures returns the plugins skipped during discovery.
func (app *Application) Failures() []plugin.LoadFailure {
	out := make([]plugin.LoadFailure, len(app.failures))
	copy(out, app.failures)
	return out
}

// vmLimits selects the VM limits preset and applies the output override.
func vmLimits(rc config.RuntimeConfig) plua.Limits {
	limits := plua.DefaultLimits()
	if rc.Limits == "strict" {
		limits = plua.StrictLimits()
	}
	if rc.MaxOutput > 0 {
		limits.MaxOutputSize = rc.MaxOutput
	}
	return limits
}

// Stats returns the runner's counters.
func (app *Application) Stats() rpc.Stats {
	return app.runner.Stats()
}

// Shutdown closes the bridge and waits for the runner to release the
// plugins. If ctx ends first the runner is cancelled and
// ErrShutdownTimeout is returned. Later calls return the first result.
func (app *Application) Shutdown(ctx context.Context) error {
	app.shutdownOnce.Do(func() {
		app.bridge.Close()

		select {
		case <-app.runner.Done():
		case <-ctx.Done():
			app.cancel()
			<-app.runner.Done()
			app.shutdownErr = ErrShutdownTimeout
		}
		app.cancel()

		app.logger.Info("shutdown complete", "commands", app.runner.Stats().Commands)
	})
	return app.shutdownErr
}
