// Package exec implements the `exec` action, which runs an external tool
// (compiler, linter, test runner) through the process capability.
package exec

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"sort"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/process"
	"github.com/vk/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the exec action.
type Input struct {
	Command string            `arg:"command,required"`
	Args    []string          `arg:"args"`
	Dir     string            `arg:"dir"`
	Env     map[string]string `arg:"env"`
	// Stdout, when set, is a file that receives the tool's standard output.
	Stdout string `arg:"stdout"`
	// Quiet suppresses the live output.
	Quiet bool `arg:"quiet"`
}

// OnRunExec is the handler for the `exec` action.
func OnRunExec(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)
	if env.Process == nil {
		return fmt.Errorf("no process runner configured")
	}

	cmd := process.Command{
		Name: input.Command,
		Args: input.Args,
		Dir:  env.Path(input.Dir),
		Env:  environ(input.Env),
	}
	if cmd.Dir == "" {
		cmd.Dir = env.WorkDir
	}
	if !input.Quiet {
		cmd.Stdout = writerOrDiscard(env.Stdout)
		cmd.Stderr = os.Stderr
	}

	logger.Info("Running command", "command", cmd.String(), "dir", cmd.Dir)
	res, err := env.Process.Run(ctx, cmd)
	if err != nil {
		return err
	}
	logger.Debug("Command finished.", "command", cmd.String(), "duration", res.Duration)

	if input.Stdout != "" {
		if err := fsutil.WriteFile(env.Path(input.Stdout), res.Stdout); err != nil {
			return fmt.Errorf("failed to write stdout: %w", err)
		}
	}
	return nil
}

func environ(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("exec", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunExec,
	})
}
