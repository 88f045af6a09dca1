// Package concat implements the `concat` action, which bundles files into a
// single output in the order their include patterns are listed.
package concat

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the concat action.
type Input struct {
	From    string   `arg:"from"`
	Include []string `arg:"include,required"`
	Output  string   `arg:"output,required"`
	// Separator goes between files. Defaults to a newline.
	Separator *string `arg:"separator"`
	// RemoveSources deletes the bundled inputs afterwards.
	RemoveSources bool `arg:"remove_sources"`
}

// OnRunConcat is the handler for the `concat` action.
func OnRunConcat(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)

	from := env.Path(input.From)
	if from == "" {
		from = env.WorkDir
	}
	output := env.Path(input.Output)
	sep := "\n"
	if input.Separator != nil {
		sep = *input.Separator
	}

	files, err := orderedFiles(from, input.Include)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	var sources []string
	for _, f := range files {
		if f == output {
			continue
		}
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", f, err)
		}
		if len(sources) > 0 {
			buf.WriteString(sep)
		}
		buf.Write(data)
		sources = append(sources, f)
	}

	if err := fsutil.WriteFile(output, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write %s: %w", input.Output, err)
	}

	if input.RemoveSources {
		for _, f := range sources {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove source %s: %w", f, err)
			}
		}
	}

	logger.Info("Bundled files", "count", len(sources), "output", input.Output, "bytes", buf.Len())
	return nil
}

// orderedFiles expands each include pattern on its own so the bundle order
// follows the pattern order. Negations apply to every pattern.
func orderedFiles(from string, include []string) ([]string, error) {
	var negations []string
	for _, p := range include {
		if strings.HasPrefix(p, "!") {
			negations = append(negations, p)
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, p := range include {
		if strings.HasPrefix(p, "!") {
			continue
		}
		files, err := fsutil.Files(from, append([]string{p}, negations...))
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", p, err)
		}
		for _, f := range files {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
	}
	return out, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("concat", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunConcat,
	})
}
