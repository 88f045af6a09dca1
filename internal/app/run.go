package app

import (
	"context"

	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/executor"
)

// Run executes goals as one execution run. If a task started the dev
// server, Run keeps serving until ctx is done.
func (a *App) Run(ctx context.Context, goals []string) (*executor.Report, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "goals", goals)

	// Unknown goals fail before anything starts.
	if len(goals) > 0 {
		if _, err := a.table.Resolve(goals...); err != nil {
			return nil, err
		}
	}
	a.healthCheckServer()

	report, err := a.executor.Run(ctx, goals, a.config.RunSettings())
	if err != nil {
		return report, err
	}

	if a.dev.Running() {
		a.logger.Info("🌐 Dev server is running, press Ctrl+C to stop", "address", a.dev.Addr())
		<-ctx.Done()
	}

	a.logger.Debug("App.Run method finished.")
	return report, nil
}
