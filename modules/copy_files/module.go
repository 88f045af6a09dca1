// Package copy_files implements the `copy` action. Matched files keep their
// path relative to the static part of the glob that matched them.
package copy_files

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/registry"
	"golang.org/x/sync/errgroup"
)

// maxParallelCopies bounds the open files of one copy action.
const maxParallelCopies = 8

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the copy action.
type Input struct {
	// From is the base the include globs are resolved against.
	From    string   `arg:"from"`
	Include []string `arg:"include,required"`
	To      string   `arg:"to,required"`
	// Flatten drops the relative directory and copies by file name.
	Flatten bool `arg:"flatten"`
}

// OnRunCopy is the handler for the `copy` action.
func OnRunCopy(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)

	from := env.Path(input.From)
	if from == "" {
		from = env.WorkDir
	}
	to := env.Path(input.To)

	entries, err := fsutil.Expand(from, input.Include, false)
	if err != nil {
		return fmt.Errorf("failed to expand include: %w", err)
	}
	if len(entries) == 0 {
		logger.Warn("Copy matched no files", "from", input.From, "include", input.Include)
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelCopies)
	for _, e := range entries {
		rel := e.Rel
		if input.Flatten {
			rel = filepath.Base(e.Path)
		}
		dst := filepath.Join(to, rel)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := fsutil.CopyFile(e.Path, dst); err != nil {
				return fmt.Errorf("failed to copy %s: %w", e.Path, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Copied files", "count", len(entries), "to", input.To)
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("copy", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunCopy,
	})
}
