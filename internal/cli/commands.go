package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vk/taskgrid/internal/app"
	"gopkg.in/yaml.v3"
)

// NewRootCommand creates the taskgrid command tree.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	o := newOptions(outW, errW)

	root := &cobra.Command{
		Use:   "taskgrid",
		Short: "Run build task graphs declared in HCL Buildfiles",
		Long: `taskgrid runs named build tasks declared in Buildfiles. A task lists its
prerequisites and an ordered set of actions; prerequisites run first and
independent tasks run concurrently.

Examples:
  taskgrid run build:dev           # run a goal and its prerequisites
  taskgrid run --mode fail-soft    # run the default goal, keep going on failures
  taskgrid watch build:dev         # build, then rebuild on file changes
  taskgrid inspect build:prod      # show the tasks a goal would run`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          usageArgs(unknownCommand),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.loadEnvFile(cmd)
		},
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})
	o.bindFlags(root)

	root.AddCommand(
		newRunCommand(o),
		newWatchCommand(o),
		newListCommand(o),
		newInspectCommand(o),
		newValidateCommand(o),
		newVersionCommand(o),
	)
	return root
}

// unknownCommand rejects positional arguments on the root command, which
// only reach it when they name no subcommand.
func unknownCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if s := cmd.SuggestionsFor(args[0]); len(s) > 0 {
		return fmt.Errorf("unknown command %q, did you mean %q?", args[0], s[0])
	}
	return fmt.Errorf("unknown command %q", args[0])
}

// withApp loads the app, runs fn and closes the app.
func withApp(cmd *cobra.Command, o *options, fn func(a *app.App) error) error {
	a, err := o.newApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 10*time.Second)
		defer cancel()
		_ = a.Close(ctx)
	}()
	return fn(a)
}

func newRunCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [GOAL...]",
		Short: "Run goals and their prerequisites (default goal when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, o, func(a *app.App) error {
				report, err := a.Run(cmd.Context(), args)
				if report != nil {
					printSummary(o.errW, report)
				}
				return err
			})
		},
	}
}

func newWatchCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [GOAL]",
		Short: "Run a goal, then re-run watched tasks when files change",
		Args:  usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := ""
			if len(args) == 1 {
				goal = args[0]
			}
			return withApp(cmd, o, func(a *app.App) error {
				return a.Watch(cmd.Context(), goal)
			})
		},
	}
}

func newListCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks with their descriptions",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, o, func(a *app.App) error {
				table := a.Table()
				names := table.Names()
				width := 0
				for _, name := range names {
					width = max(width, len(name))
				}
				for _, name := range names {
					t, _ := table.Lookup(name)
					line := fmt.Sprintf("%-*s  %s", width, name, t.Description)
					if name == table.Default() {
						line += " (default)"
					}
					fmt.Fprintln(o.outW, strings.TrimRight(line, " "))
				}
				return nil
			})
		},
	}
}

func newInspectCommand(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "inspect [GOAL...]",
		Short: "Print the task table, or the tasks the goals would run",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "yaml" && output != "json" {
				return usageError(fmt.Errorf("invalid output %q (want yaml or json)", output))
			}
			return withApp(cmd, o, func(a *app.App) error {
				entries, err := a.Table().Describe(args...)
				if err != nil {
					return err
				}
				if output == "json" {
					enc := json.NewEncoder(o.outW)
					enc.SetIndent("", "  ")
					return enc.Encode(entries)
				}
				enc := yaml.NewEncoder(o.outW)
				enc.SetIndent(2)
				if err := enc.Encode(entries); err != nil {
					return err
				}
				return enc.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Output format: yaml or json")
	return cmd
}

func newValidateCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the Buildfiles without running anything",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, o, func(a *app.App) error {
				p := newPalette(o.outW)
				p.ok.Fprintf(o.outW, "✅ Buildfile is valid: %d tasks\n", a.Table().Len())
				return nil
			})
		},
	}
}

func newVersionCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the taskgrid version",
		Args:  usageArgs(cobra.NoArgs),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(o.outW, "taskgrid %s\n", Version)
		},
	}
}
