// Package delete_files implements the `delete` action, which removes files
// and directories matched by globs. Missing paths are not an error, so a
// clean task can run on a fresh checkout.
package delete_files

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the delete action.
type Input struct {
	// Paths may contain "!" negations, e.g. ["app/**/*.js", "!app/system.config.js"].
	Paths []string `arg:"paths,required"`
	// Keep protects matching paths, including the directories above them.
	Keep []string `arg:"keep"`
}

// OnRunDelete is the handler for the `delete` action.
func OnRunDelete(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)

	entries, err := fsutil.Expand(env.WorkDir, input.Paths, true)
	if err != nil {
		return fmt.Errorf("failed to expand paths: %w", err)
	}
	keep, err := fsutil.Expand(env.WorkDir, input.Keep, true)
	if err != nil {
		return fmt.Errorf("failed to expand keep: %w", err)
	}
	kept := make(map[string]bool, len(keep))
	keepList := make([]string, 0, len(keep))
	for _, e := range keep {
		kept[e.Path] = true
		keepList = append(keepList, e.Path)
	}

	removed := 0
	// handled holds directories already removed or already emptied around
	// kept paths; entries below them need no further work.
	var handled []string
	for _, e := range entries {
		if kept[e.Path] || under(e.Path, keepList) || under(e.Path, handled) {
			continue
		}
		if e.IsDir && keepsSomething(e.Path, kept) {
			n, err := removeExcept(e.Path, kept)
			removed += n
			if err != nil {
				return err
			}
			handled = append(handled, e.Path)
			continue
		}
		if err := os.RemoveAll(e.Path); err != nil {
			return fmt.Errorf("failed to delete %s: %w", e.Path, err)
		}
		handled = append(handled, e.Path)
		removed++
	}

	logger.Info("Deleted paths", "count", removed)
	return nil
}

// under reports whether p lies inside one of dirs.
func under(p string, dirs []string) bool {
	for _, d := range dirs {
		if strings.HasPrefix(p, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func keepsSomething(dir string, kept map[string]bool) bool {
	for p := range kept {
		if strings.HasPrefix(p, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// removeExcept empties dir but leaves kept paths and their parents.
func removeExcept(dir string, kept map[string]bool) (int, error) {
	children, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, c := range children {
		p := filepath.Join(dir, c.Name())
		switch {
		case kept[p]:
		case c.IsDir() && keepsSomething(p, kept):
			n, err := removeExcept(p, kept)
			removed += n
			if err != nil {
				return removed, err
			}
		default:
			if err := os.RemoveAll(p); err != nil {
				return removed, fmt.Errorf("failed to delete %s: %w", p, err)
			}
			removed++
		}
	}
	return removed, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("delete", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunDelete,
	})
}
