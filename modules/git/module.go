// Package git implements the `git` action used by release tasks: add,
// commit, tag and push.
package git

import (
	"context"
	"fmt"
	"reflect"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/process"
	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/modules/version"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the git action.
type Input struct {
	Op      string   `arg:"op,required"`
	Paths   []string `arg:"paths"`
	Message string   `arg:"message"`
	// Tag names the tag for op = "tag". Defaults to the manifest version.
	Tag      string `arg:"tag"`
	Manifest string `arg:"manifest"`
	Remote   string `arg:"remote"`
	Branch   string `arg:"branch"`
	// Tags pushes tags as well.
	Tags bool `arg:"tags"`
}

// OnRunGit is the handler for the `git` action.
func OnRunGit(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)
	if env.Process == nil {
		return fmt.Errorf("no process runner configured")
	}

	args, err := buildArgs(env, input)
	if err != nil {
		return err
	}

	cmd := process.Command{Name: "git", Args: args, Dir: env.WorkDir, Stdout: env.Stdout}
	logger.Info("Running git", "op", input.Op, "command", cmd.String())
	if _, err := env.Process.Run(ctx, cmd); err != nil {
		return err
	}
	return nil
}

func buildArgs(env *action.Env, input *Input) ([]string, error) {
	switch input.Op {
	case "add":
		if len(input.Paths) == 0 {
			return nil, fmt.Errorf("git add: paths are required")
		}
		return append([]string{"add", "--"}, input.Paths...), nil

	case "commit":
		if input.Message == "" {
			return nil, fmt.Errorf("git commit: message is required")
		}
		args := []string{"commit", "-m", input.Message}
		if len(input.Paths) > 0 {
			args = append(append(args, "--"), input.Paths...)
		}
		return args, nil

	case "tag":
		tag := input.Tag
		if tag == "" {
			manifest := input.Manifest
			if manifest == "" {
				manifest = version.DefaultManifest
			}
			v, err := version.Read(env.Path(manifest))
			if err != nil {
				return nil, fmt.Errorf("git tag: %w", err)
			}
			tag = v
		}
		msg := input.Message
		if msg == "" {
			msg = "Created Tag for version: " + tag
		}
		return []string{"tag", "-a", tag, "-m", msg}, nil

	case "push":
		remote := input.Remote
		if remote == "" {
			remote = "origin"
		}
		args := []string{"push", remote}
		if input.Branch != "" {
			args = append(args, input.Branch)
		}
		if input.Tags {
			args = append(args, "--tags")
		}
		return args, nil
	}
	return nil, fmt.Errorf("unknown git op %q (want add, commit, tag or push)", input.Op)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("git", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunGit,
	})
}
