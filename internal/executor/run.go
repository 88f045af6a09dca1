package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// record tracks one task within a run. done is closed once the task reached
// a terminal state or will never start.
type record struct {
	done   chan struct{}
	state  State
	result TaskResult
}

// run is the per-invocation state of Executor.Run.
type run struct {
	exec     *Executor
	settings config.RunSettings
	evalCtx  *hcl.EvalContext
	cancel   context.CancelCauseFunc

	mu       sync.Mutex
	records  map[string]*record
	finished []TaskResult
	aborted  bool
	rootErr  error
	degraded bool
}

// ensure runs name unless another requester already did, and waits until
// it reached a terminal state.
func (r *run) ensure(ctx context.Context, name string) {
	r.mu.Lock()
	rec, ok := r.records[name]
	if !ok {
		rec = &record{done: make(chan struct{}), state: Pending}
		r.records[name] = rec
	}
	r.mu.Unlock()

	if ok {
		<-rec.done
		return
	}
	defer close(rec.done)
	r.execute(ctx, name, rec)
}

func (r *run) execute(ctx context.Context, name string, rec *record) {
	t, err := r.exec.table.Lookup(name)
	if err != nil {
		// The table was validated; this only happens on a programming error.
		r.abort(err)
		return
	}
	ctx, logger := ctxlog.With(ctx, "task", name)

	var g errgroup.Group
	for _, dep := range t.DependsOn {
		g.Go(func() error {
			r.ensure(ctx, dep)
			return nil
		})
	}
	_ = g.Wait()

	for _, step := range t.Sequence {
		if r.isAborted() {
			break
		}
		r.ensure(ctx, step)
	}

	if ctx.Err() != nil {
		logger.Debug("Task not started, context done.")
		return
	}
	if err := r.exec.sem.Acquire(ctx, 1); err != nil {
		logger.Debug("Task not started.", "reason", err)
		return
	}
	defer r.exec.sem.Release(1)

	if !r.start(rec) {
		logger.Debug("Task not started, run aborted.")
		return
	}

	ctx, span := r.exec.tracer.Start(ctx, "task "+name,
		trace.WithAttributes(attribute.String("taskgrid.task", name), attribute.String("taskgrid.policy", string(t.Policy))))
	defer span.End()

	logger.Info("▶️ Starting task")
	started := time.Now()
	skipped, err := r.runActions(ctx, t)
	res := TaskResult{
		Name:     name,
		State:    Succeeded,
		Skipped:  skipped,
		Start:    started,
		End:      time.Now(),
		Duration: time.Since(started),
	}

	if err != nil {
		res.State = Failed
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.handleFailure(ctx, t, err)
	} else {
		logger.Info("✅ Finished task", "duration", res.Duration)
	}
	span.SetAttributes(attribute.String("taskgrid.state", string(res.State)))

	r.finish(rec, res)
	if o := r.exec.observer; o != nil {
		o.ObserveTask(name, string(res.State), res.Duration)
	}
}

// runActions runs t's actions serially and returns how many were skipped by
// their `when` condition.
func (r *run) runActions(ctx context.Context, t *config.Task) (int, error) {
	logger := ctxlog.FromContext(ctx)
	skipped := 0

	for i, a := range t.Actions {
		label := fmt.Sprintf("#%d (%s)", i+1, a.Type)
		wrap := func(err error) error {
			return &TaskError{Task: t.Name, Action: label, Policy: t.Policy, Err: err}
		}

		if a.When != nil {
			ok, err := r.exec.converter.EvalBool(a.When, r.evalCtx)
			if err != nil {
				return skipped, wrap(fmt.Errorf("evaluating when: %w", err))
			}
			if !ok {
				logger.Debug("Skipping action, condition is false.", "action", label)
				skipped++
				continue
			}
		}

		handler, ok := r.exec.registry.Lookup(a.Type)
		if !ok {
			return skipped, wrap(fmt.Errorf("unknown action type %q", a.Type))
		}
		input := handler.NewInput()
		if err := r.exec.converter.DecodeArguments(ctx, input, a.Arguments, r.evalCtx); err != nil {
			return skipped, wrap(fmt.Errorf("failed to decode arguments: %w", err))
		}

		env := r.exec.env
		env.Settings = r.settings
		env.Task = t.Name

		logger.Debug("Calling action handler.", "action", label)
		if err := r.exec.registry.Invoke(ctx, handler, &env, input); err != nil {
			return skipped, wrap(err)
		}
	}
	return skipped, nil
}

// handleFailure applies the task policy and run mode to a failure.
func (r *run) handleFailure(ctx context.Context, t *config.Task, err error) {
	logger := ctxlog.FromContext(ctx)

	switch {
	case t.Policy == config.PolicyAdvisory:
		logger.Warn("⚠️ Advisory task failed, continuing", "error", err)
		r.markDegraded()
	case t.Policy == config.PolicyFatal || r.settings.Mode == config.ModeFailFast:
		logger.Error("❌ Task failed, aborting run", "error", err)
		r.abort(err)
	default:
		logger.Error("❌ Task failed, continuing", "error", err)
		r.markDegraded()
	}
}

// start moves rec to Running unless the run was aborted. It is the single
// point where a task commits to running.
func (r *run) start(rec *record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.aborted {
		return false
	}
	rec.state = Running
	return true
}

func (r *run) finish(rec *record, res TaskResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.state = res.State
	rec.result = res
	r.finished = append(r.finished, res)
}

// abort records the root cause once and cancels the run context.
func (r *run) abort(err error) {
	r.mu.Lock()
	first := !r.aborted
	if first {
		r.aborted = true
		r.rootErr = err
	}
	r.mu.Unlock()
	if first {
		r.cancel(err)
	}
}

func (r *run) markDegraded() {
	r.mu.Lock()
	r.degraded = true
	r.mu.Unlock()
}

func (r *run) isAborted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted
}

func (r *run) report(goals []string, start time.Time) *Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep := &Report{
		Goals:    goals,
		Mode:     r.settings.Mode,
		Profile:  r.settings.Profile,
		Status:   StatusSucceeded,
		Tasks:    append([]TaskResult(nil), r.finished...),
		Start:    start,
		Duration: time.Since(start),
	}
	switch {
	case r.aborted:
		rep.Status = StatusFailed
		rep.Err = r.rootErr
	case r.degraded:
		rep.Status = StatusDegraded
	}

	closure, _ := r.exec.table.Closure(goals...)
	for _, name := range closure {
		if rec, ok := r.records[name]; !ok || rec.state == Pending {
			rep.NotRun = append(rep.NotRun, name)
		}
	}
	return rep
}
