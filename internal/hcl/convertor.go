package hcl

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/taskgrid/internal/config"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Converter is the HCL-specific implementation of the config.Converter
// interface. It is immutable after construction and safe for concurrent use.
type Converter struct {
	vars  cty.Value
	env   cty.Value
	funcs map[string]function.Function
}

// NewConverter creates a converter exposing vars as `var.*` and env as
// `env.*` to every evaluation.
func NewConverter(vars map[string]cty.Value, env cty.Value) *Converter {
	varObj := cty.EmptyObjectVal
	if len(vars) > 0 {
		varObj = cty.ObjectVal(config.CloneVars(vars))
	}
	if env == cty.NilVal {
		env = cty.EmptyObjectVal
	}
	return &Converter{vars: varObj, env: env, funcs: functions()}
}

// EvalContext builds the evaluation context for one run.
func (c *Converter) EvalContext(rs config.RunSettings) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"var": c.vars,
			"env": c.env,
			"run": rs.Object(),
		},
		Functions: c.funcs,
	}
}

// EvalBool evaluates a condition expression. A null result is false.
func (c *Converter) EvalBool(expr hcl.Expression, evalCtx *hcl.EvalContext) (bool, error) {
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return false, diags
	}
	if val.IsNull() {
		return false, nil
	}
	val, err := convert.Convert(val, cty.Bool)
	if err != nil {
		return false, fmt.Errorf("%s: condition must be a bool: %w", expr.Range(), err)
	}
	if !val.IsKnown() {
		return false, fmt.Errorf("%s: condition value is unknown", expr.Range())
	}
	return val.True(), nil
}

// environObject turns KEY=VALUE pairs into the `env` object.
func environObject(environ []string) cty.Value {
	attrs := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		attrs[k] = cty.StringVal(v)
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(attrs)
}

// functions is the function table available in Buildfile expressions.
func functions() map[string]function.Function {
	return map[string]function.Function{
		"upper":     stdlib.UpperFunc,
		"lower":     stdlib.LowerFunc,
		"trimspace": stdlib.TrimSpaceFunc,
		"join":      stdlib.JoinFunc,
		"split":     stdlib.SplitFunc,
		"replace":   stdlib.ReplaceFunc,
		"format":    stdlib.FormatFunc,
		"concat":    stdlib.ConcatFunc,
		"contains":  stdlib.ContainsFunc,
		"length":    stdlib.LengthFunc,
		"coalesce":  stdlib.CoalesceFunc,
		"merge":     stdlib.MergeFunc,
		"keys":      stdlib.KeysFunc,
	}
}
