package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
)

// Loader is the interface for a format-specific Buildfile loader.
type Loader interface {
	// Load reads every Buildfile found under paths, applies the CLI variable
	// overrides and returns the merged model plus a matching Converter.
	Load(ctx context.Context, overrides map[string]string, paths ...string) (*Buildfile, Converter, error)
}

// Converter binds lazily evaluated configuration to Go values. It is the
// bridge between the raw Buildfile and the input structs of action handlers.
type Converter interface {
	// EvalContext builds the evaluation context for one run.
	EvalContext(rs RunSettings) *hcl.EvalContext

	// DecodeArguments evaluates args and populates the `arg`-tagged fields of
	// the struct target points to. Fields without a matching argument keep
	// their current value unless they are required.
	DecodeArguments(ctx context.Context, target any, args map[string]hcl.Expression, evalCtx *hcl.EvalContext) error

	// EvalBool evaluates a condition such as an action's `when`.
	EvalBool(expr hcl.Expression, evalCtx *hcl.EvalContext) (bool, error)
}
