// Package serve implements the `serve` action, which starts the development
// server. The server keeps running after the action returns; the
// application shuts it down when the command exits.
package serve

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/registry"
)

// DefaultPort is used when no port argument is given.
const DefaultPort = 3000

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the serve action.
type Input struct {
	Root string `arg:"root,required"`
	Port *int   `arg:"port"`
	// Routes maps URL prefixes to extra directories, e.g.
	// { "/node_modules" = "node_modules" }.
	Routes     map[string]string `arg:"routes"`
	LiveReload *bool             `arg:"livereload"`
}

// OnRunServe is the handler for the `serve` action.
func OnRunServe(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)
	if env.Dev == nil {
		return fmt.Errorf("no dev server configured")
	}

	opts := action.ServeOptions{
		Root:       env.Path(input.Root),
		Port:       DefaultPort,
		Routes:     make(map[string]string, len(input.Routes)),
		LiveReload: true,
	}
	if input.Port != nil {
		opts.Port = *input.Port
	}
	if input.LiveReload != nil {
		opts.LiveReload = *input.LiveReload
	}
	for prefix, dir := range input.Routes {
		opts.Routes[prefix] = env.Path(dir)
	}

	addr, err := env.Dev.Serve(ctx, opts)
	if err != nil {
		return err
	}
	logger.Debug("Dev server ready.", "address", addr)
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("serve", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunServe,
	})
}
