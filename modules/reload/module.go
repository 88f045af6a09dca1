// Package reload implements the `reload` action: connected browsers reload
// after the task's other actions rebuilt the app.
package reload

import (
	"context"
	"reflect"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input is empty; reload takes no arguments.
type Input struct{}

// OnRunReload is the handler for the `reload` action. Without a running dev
// server it does nothing.
func OnRunReload(ctx context.Context, env *action.Env, _ *Input) error {
	if env.Dev == nil {
		ctxlog.FromContext(ctx).Debug("No dev server, nothing to reload.")
		return nil
	}
	env.Dev.Reload(ctx)
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("reload", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunReload,
	})
}
