package config

import (
	"fmt"
	"maps"

	"github.com/zclconf/go-cty/cty"
)

// Mode selects how a run reacts to a failing task.
type Mode string

const (
	// ModeFailFast aborts the run on the first failure.
	ModeFailFast Mode = "fail-fast"
	// ModeFailSoft logs failures and keeps going. Watch runs use it.
	ModeFailSoft Mode = "fail-soft"
)

// ParseMode validates a mode string. Empty means fail-fast.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFailFast:
		return ModeFailFast, nil
	case ModeFailSoft:
		return ModeFailSoft, nil
	}
	return "", fmt.Errorf("unknown mode %q (want %q or %q)", s, ModeFailFast, ModeFailSoft)
}

// Policy overrides the run mode for a single task.
type Policy string

const (
	PolicyDefault  Policy = "default"
	PolicyAdvisory Policy = "advisory"
	PolicyFatal    Policy = "fatal"
)

// ParsePolicy validates a policy string. Empty means default.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyDefault:
		return PolicyDefault, nil
	case PolicyAdvisory, PolicyFatal:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown policy %q (want default, advisory or fatal)", s)
}

// RunSettings is the immutable configuration of a single execution run. It
// is created once per invocation and passed by value.
type RunSettings struct {
	Mode    Mode
	Profile string
	// CI is true in headless environments.
	CI bool
	// Goal is the first goal of the run, exposed as run.goal.
	Goal string
}

// DefaultProfile is used when neither the CLI nor the goal sets one.
const DefaultProfile = "dev"

// ForGoal returns a copy bound to goal. A non-empty taskProfile wins over
// the profile chosen on the command line.
func (s RunSettings) ForGoal(goal, taskProfile string) RunSettings {
	s.Goal = goal
	if taskProfile != "" {
		s.Profile = taskProfile
	}
	if s.Profile == "" {
		s.Profile = DefaultProfile
	}
	return s
}

// WithMode returns a copy using mode m.
func (s RunSettings) WithMode(m Mode) RunSettings {
	s.Mode = m
	return s
}

// Object renders the settings as the `run` object of the eval context.
func (s RunSettings) Object() cty.Value {
	return cty.ObjectVal(map[string]cty.Value{
		"mode":    cty.StringVal(string(s.Mode)),
		"profile": cty.StringVal(s.Profile),
		"ci":      cty.BoolVal(s.CI),
		"goal":    cty.StringVal(s.Goal),
	})
}

// CloneVars copies a vars map so callers can layer overrides.
func CloneVars(vars map[string]cty.Value) map[string]cty.Value {
	if vars == nil {
		return map[string]cty.Value{}
	}
	return maps.Clone(vars)
}
