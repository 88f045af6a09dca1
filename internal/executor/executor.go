package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/internal/task"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// Observer receives task outcomes, e.g. to feed metrics.
type Observer interface {
	ObserveTask(task string, state string, d time.Duration)
}

// Options configures an Executor.
type Options struct {
	// Workers bounds how many tasks run actions at the same time. Waiting on
	// prerequisites never holds a slot. Zero means runtime.NumCPU().
	Workers  int
	Tracer   trace.Tracer
	Observer Observer
	// Env is the template copied into every action's environment.
	Env action.Env
}

// Executor runs goals from a task table. It is safe for concurrent use;
// every call to Run is an independent execution run.
type Executor struct {
	table     *task.Table
	registry  *registry.Registry
	converter config.Converter
	sem       *semaphore.Weighted
	workers   int
	tracer    trace.Tracer
	observer  Observer
	env       action.Env
}

// New creates a new Executor.
func New(table *task.Table, reg *registry.Registry, conv config.Converter, opts Options) *Executor {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/vk/taskgrid/internal/executor")
	}
	return &Executor{
		table:     table,
		registry:  reg,
		converter: conv,
		sem:       semaphore.NewWeighted(int64(workers)),
		workers:   workers,
		tracer:    tracer,
		observer:  opts.Observer,
		env:       opts.Env,
	}
}

// Table returns the task table the executor runs.
func (e *Executor) Table() *task.Table { return e.table }

// Run executes goals one after another in a single run; a task shared by
// several goals runs once. With no goals the table's default goal is used.
// Unknown goals are reported before anything runs.
//
// The returned error is non-nil only when the run failed; a degraded run
// returns a nil error and a report with StatusDegraded.
func (e *Executor) Run(ctx context.Context, goals []string, rs config.RunSettings) (*Report, error) {
	if len(goals) == 0 {
		if e.table.Default() == "" {
			return nil, errors.New("no goal given and the Buildfile declares no default")
		}
		goals = []string{e.table.Default()}
	}
	tasks, err := e.table.Resolve(goals...)
	if err != nil {
		return nil, err
	}
	if rs.Mode == "" {
		rs.Mode = config.ModeFailFast
	}
	// The first goal that declares a profile fixes it for the whole run.
	var profile string
	for _, t := range tasks {
		if t.Profile != "" {
			profile = t.Profile
			break
		}
	}
	rs = rs.ForGoal(goals[0], profile)

	ctx, logger := ctxlog.With(ctx, "goal", goals[0])
	ctx, span := e.tracer.Start(ctx, "run",
		trace.WithAttributes(
			attribute.StringSlice("taskgrid.goals", goals),
			attribute.String("taskgrid.mode", string(rs.Mode)),
			attribute.String("taskgrid.profile", rs.Profile),
		))
	defer span.End()

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r := &run{
		exec:     e,
		settings: rs,
		evalCtx:  e.converter.EvalContext(rs),
		records:  make(map[string]*record),
		cancel:   cancel,
	}

	start := time.Now()
	logger.Info("🚀 Starting run", "goals", goals, "mode", rs.Mode, "profile", rs.Profile, "workers", e.workers)
	for _, goal := range goals {
		r.ensure(runCtx, goal)
		if r.isAborted() || runCtx.Err() != nil {
			break
		}
	}

	report := r.report(goals, start)
	if report.Err == nil && ctx.Err() != nil {
		report.Status = StatusFailed
		report.Err = context.Cause(ctx)
	}

	switch report.Status {
	case StatusFailed:
		span.SetStatus(codes.Error, report.Err.Error())
		logger.Error("🏁 Run failed", "duration", report.Duration, "error", report.Err, "not_run", len(report.NotRun))
		return report, fmt.Errorf("%w: %w", ErrAborted, report.Err)
	case StatusDegraded:
		logger.Warn("🏁 Run finished with failures", "duration", report.Duration, "failed", len(report.Failed()))
	default:
		logger.Info("🏁 Run finished", "duration", report.Duration, "tasks", len(report.Tasks))
	}
	return report, nil
}
