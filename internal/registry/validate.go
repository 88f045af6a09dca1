package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	envType     = reflect.TypeOf((*action.Env)(nil))
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ValidateRegistry checks that every handler has the expected signature and
// that its input struct matches InputType.
func (r *Registry) ValidateRegistry(ctx context.Context) error {
	var errs []string
	logger := ctxlog.FromContext(ctx)

	for _, name := range r.Types() {
		handler := r.ActionRegistry[name]
		fnType := reflect.TypeOf(handler.Fn)
		if fnType == nil || fnType.Kind() != reflect.Func {
			errs = append(errs, fmt.Sprintf("action '%s': handler is not a function", name))
			continue
		}
		if fnType.NumIn() != 3 || fnType.NumOut() != 1 {
			errs = append(errs, fmt.Sprintf("action '%s': handler must be func(context.Context, *action.Env, *Input) error, got %s", name, fnType))
			continue
		}
		if fnType.In(0) != contextType || fnType.In(1) != envType || fnType.Out(0) != errorType {
			errs = append(errs, fmt.Sprintf("action '%s': handler must be func(context.Context, *action.Env, *Input) error, got %s", name, fnType))
			continue
		}
		if handler.InputType == nil || handler.InputType.Kind() != reflect.Struct {
			errs = append(errs, fmt.Sprintf("action '%s': InputType must be a struct type", name))
			continue
		}
		if want := reflect.PointerTo(handler.InputType); fnType.In(2) != want {
			errs = append(errs, fmt.Sprintf("action '%s': handler takes %s but InputType is %s", name, fnType.In(2), want))
			continue
		}
		if handler.NewInput != nil {
			if got := reflect.TypeOf(handler.NewInput()); got != fnType.In(2) {
				errs = append(errs, fmt.Sprintf("action '%s': NewInput returns %s, handler takes %s", name, got, fnType.In(2)))
			}
		}
		logger.Debug("Validated action handler.", "action", name, "args", len(config.ArgFields(handler.InputType)))
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// ValidateBuildfile performs a strict parity check between the actions used
// in bf and the registered Go handlers: every type must exist, every
// argument must map to an input field, and required fields must be set.
// Argument values are not evaluated here.
func (r *Registry) ValidateBuildfile(ctx context.Context, bf *config.Buildfile) error {
	var errs []string

	names := make([]string, 0, len(bf.Tasks))
	for name := range bf.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for i, a := range bf.Tasks[name].Actions {
			where := fmt.Sprintf("task '%s', action #%d (%s)", name, i+1, a.Type)
			handler, ok := r.ActionRegistry[a.Type]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: unknown action type; known types: %s", where, strings.Join(r.Types(), ", ")))
				continue
			}

			fields := config.ArgFields(handler.InputType)
			known := make(map[string]bool, len(fields))
			for _, f := range fields {
				known[f.Name] = true
				if _, set := a.Arguments[f.Name]; f.Required && !set {
					errs = append(errs, fmt.Sprintf("%s: missing required argument '%s'", where, f.Name))
				}
			}

			var args []string
			for arg := range a.Arguments {
				args = append(args, arg)
			}
			sort.Strings(args)
			for _, arg := range args {
				if !known[arg] {
					errs = append(errs, fmt.Sprintf("%s: unsupported argument '%s'", where, arg))
				}
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("buildfile validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	ctxlog.FromContext(ctx).Debug("Buildfile actions validated against registry.", "tasks", len(names))
	return nil
}
