package app

import (
	"context"
	"errors"

	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/executor"
	"github.com/vk/taskgrid/internal/watch"
)

// Watch runs goal once in fail-soft mode, then re-runs the tasks of every
// watch block in the goal's closure when matching files change. It returns
// once ctx is done and the in-flight runs finished.
func (a *App) Watch(ctx context.Context, goal string) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if goal == "" {
		goal = a.table.Default()
	}
	if goal == "" {
		return errors.New("no goal given and the Buildfile declares no default")
	}

	watches, err := a.table.Watches(goal)
	if err != nil {
		return err
	}
	a.healthCheckServer()

	settings := a.config.RunSettings().WithMode(config.ModeFailSoft)
	if _, err := a.executor.Run(ctx, []string{goal}, settings); err != nil && !errors.Is(err, executor.ErrAborted) {
		return err
	}

	if len(watches) == 0 {
		a.logger.Warn("⚠️ Goal declares no watch blocks, nothing to watch", "goal", goal)
	}
	w := watch.New(a.workDir, watches, a.watchRunner(settings))
	if err := w.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	w.Wait()
	return nil
}

// watchRunner re-enters the executor with a new run per change. Failures
// are logged by the executor and never stop watching.
func (a *App) watchRunner(settings config.RunSettings) watch.RunFunc {
	return func(ctx context.Context, goals []string) error {
		_, err := a.executor.Run(ctx, goals, settings)
		return err
	}
}
