// Package replace implements the `replace` action: literal or regular
// expression substitutions applied in place.
package replace

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the replace action.
type Input struct {
	Files []string `arg:"files,required"`
	// Replacements maps search strings to replacements. They are applied in
	// sorted key order.
	Replacements map[string]string `arg:"replacements,required"`
	// Regex treats the keys as regular expressions; replacements may use $1.
	Regex bool `arg:"regex"`
}

type rule struct {
	from string
	to   string
	re   *regexp.Regexp
}

// OnRunReplace is the handler for the `replace` action.
func OnRunReplace(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)

	rules, err := compile(input.Replacements, input.Regex)
	if err != nil {
		return err
	}

	files, err := fsutil.Files(env.WorkDir, input.Files)
	if err != nil {
		return fmt.Errorf("failed to expand files: %w", err)
	}
	if len(files) == 0 {
		logger.Warn("Replace matched no files", "files", input.Files)
		return nil
	}

	changed := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", f, err)
		}
		out := string(data)
		for _, r := range rules {
			if r.re != nil {
				out = r.re.ReplaceAllString(out, r.to)
			} else {
				out = strings.ReplaceAll(out, r.from, r.to)
			}
		}
		if out == string(data) {
			continue
		}
		info, err := os.Stat(f)
		if err != nil {
			return err
		}
		if err := os.WriteFile(f, []byte(out), info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to write %s: %w", f, err)
		}
		changed++
	}

	logger.Info("Replaced content", "files", len(files), "changed", changed)
	return nil
}

func compile(replacements map[string]string, regex bool) ([]rule, error) {
	keys := make([]string, 0, len(replacements))
	for k := range replacements {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rules := make([]rule, 0, len(keys))
	for _, k := range keys {
		r := rule{from: k, to: replacements[k]}
		if regex {
			re, err := regexp.Compile(k)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", k, err)
			}
			r.re = re
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("replace", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunReplace,
	})
}
