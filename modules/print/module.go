package print

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments for the print action.
type Input struct {
	Message string         `arg:"message"`
	Values  map[string]any `arg:"values"`
}

// OnRunPrint is the handler for the `print` action.
func OnRunPrint(ctx context.Context, env *action.Env, input *Input) error {
	ctxlog.FromContext(ctx).Debug("Printing input")

	var w io.Writer = os.Stdout
	if env.Stdout != nil {
		w = env.Stdout
	}

	if input.Message != "" {
		fmt.Fprintf(w, "[%s] %s\n", env.Task, input.Message)
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(input.Values))
	for k := range input.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(w, "      %s = %v\n", k, input.Values[k])
	}
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("print", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunPrint,
	})
}
