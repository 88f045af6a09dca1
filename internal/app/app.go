package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/devserver"
	"github.com/vk/taskgrid/internal/executor"
	"github.com/vk/taskgrid/internal/metrics"
	"github.com/vk/taskgrid/internal/process"
	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/internal/task"
	"github.com/vk/taskgrid/internal/telemetry"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx       context.Context
	config    *Config
	logger    *slog.Logger
	registry  *registry.Registry
	buildfile *config.Buildfile
	table     *task.Table
	executor  *executor.Executor
	metrics   *metrics.Metrics
	dev       *devserver.Server
	workDir   string

	httpServer        *http.Server
	shutdownTelemetry telemetry.Shutdown
}

// NewApp is the constructor for the main application. Logs go to logW and
// user-facing action output to outW. Loading or validation errors are
// returned before anything runs. With no modules the built-in actions are
// registered.
func NewApp(ctx context.Context, outW, logW io.Writer, cfg *Config, loader config.Loader, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	bf, converter, err := loader.Load(ctx, cfg.Vars, cfg.BuildfilePaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load Buildfile: %w", err)
	}
	logger.Debug("Buildfile loaded.", "files", len(bf.Files), "tasks", len(bf.Tasks))

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All Go modules registered.", "count", len(modules))

	// A mismatch between handlers and their input types is a programmer error.
	if err := reg.ValidateRegistry(ctx); err != nil {
		panic(err)
	}
	if err := reg.ValidateBuildfile(ctx, bf); err != nil {
		return nil, err
	}

	table, err := task.NewTable(bf)
	if err != nil {
		return nil, err
	}
	logger.Debug("Task table built.", "tasks", table.Len(), "default", table.Default())

	m, err := metrics.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "taskgrid",
		ServiceVersion: cfg.Version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = baseDir(cfg.BuildfilePaths[0])
	}

	dev := devserver.New()
	exec := executor.New(table, reg, converter, executor.Options{
		Workers:  cfg.Workers,
		Observer: m,
		Env: action.Env{
			Process: process.NewExecRunner(),
			Dev:     dev,
			HTTP:    newHTTPClient(),
			Stdout:  outW,
			WorkDir: workDir,
		},
	})

	return &App{
		ctx:               ctx,
		config:            cfg,
		logger:            logger,
		registry:          reg,
		buildfile:         bf,
		table:             table,
		executor:          exec,
		metrics:           m,
		dev:               dev,
		workDir:           workDir,
		shutdownTelemetry: shutdown,
	}, nil
}

// baseDir is the directory relative action paths are resolved against.
func baseDir(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return abs
	}
	return filepath.Dir(abs)
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Table returns the task table.
func (a *App) Table() *task.Table {
	return a.table
}

// WorkDir returns the base directory of relative action paths.
func (a *App) WorkDir() string {
	return a.workDir
}

// Context returns the app's base context carrying its logger.
func (a *App) Context() context.Context {
	return a.ctx
}

// Close stops the health check server, the dev server and flushes traces.
func (a *App) Close(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	var firstErr error
	if err := a.closeHealthCheckServer(); err != nil {
		firstErr = err
	}
	if err := a.dev.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.shutdownTelemetry != nil {
		if err := a.shutdownTelemetry(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.logger.Debug("App closed.")
	return firstErr
}
