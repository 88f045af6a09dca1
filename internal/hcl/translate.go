package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/schema"
)

// translateTask converts a decoded task block into the config model.
func (l *Loader) translateTask(ctx context.Context, file string, t *schema.Task) (*config.Task, error) {
	policy, err := config.ParsePolicy(t.Policy)
	if err != nil {
		return nil, fmt.Errorf("task %q (%s): %w", t.Name, file, err)
	}

	task := &config.Task{
		Name:        t.Name,
		Description: t.Description,
		DependsOn:   t.DependsOn,
		Sequence:    t.Sequence,
		Policy:      policy,
		Profile:     t.Profile,
		File:        file,
	}

	for _, a := range t.Actions {
		action, err := translateAction(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", t.Name, err)
		}
		task.Actions = append(task.Actions, action)
	}

	for _, w := range t.Watches {
		watch := &config.Watch{
			Owner:    t.Name,
			Paths:    w.Paths,
			Run:      w.Run,
			Debounce: config.DefaultDebounce,
		}
		if len(watch.Run) == 0 {
			watch.Run = []string{t.Name}
		}
		if w.Debounce != "" {
			d, err := time.ParseDuration(w.Debounce)
			if err != nil {
				return nil, fmt.Errorf("task %q: invalid watch debounce %q: %w", t.Name, w.Debounce, err)
			}
			watch.Debounce = d
		}
		task.Watches = append(task.Watches, watch)
	}

	return task, nil
}

func translateAction(ctx context.Context, a *schema.Action) (*config.Action, error) {
	attrs, diags := a.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("action %q: %w", a.Type, diags)
	}
	args := make(map[string]hcl.Expression, len(attrs))
	for name, attr := range attrs {
		args[name] = attr.Expr
	}

	action := &config.Action{
		Type:      a.Type,
		Arguments: args,
	}
	if isExprDefined(ctx, a.When, "when") {
		action.When = a.When
	}
	return action, nil
}

// isExprDefined checks if an HCL expression was actually present in the source
// code. gohcl populates omitted optional hcl.Expression fields with a
// zero-width placeholder, so a nil check is insufficient.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	// A real attribute occupies bytes in the file; the placeholder's range
	// has the same start and end byte.
	exprRange := expr.Range()
	isDefined := exprRange.End.Byte > exprRange.Start.Byte

	ctxlog.FromContext(ctx).Debug("Checking if HCL attribute was explicitly defined.",
		"attribute", attrName,
		"hcl_range", exprRange.String(),
		"is_defined", isDefined,
	)
	return isDefined
}
