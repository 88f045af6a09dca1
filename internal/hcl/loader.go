package hcl

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/schema"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	environ func() []string
}

// NewLoader creates a new HCL Buildfile loader reading the process
// environment.
func NewLoader() *Loader {
	return &Loader{environ: os.Environ}
}

// NewLoaderWithEnv creates a loader whose `env` object is built from environ
// instead of the process environment.
func NewLoaderWithEnv(environ []string) *Loader {
	return &Loader{environ: func() []string { return environ }}
}

// Load orchestrates the entire HCL loading process. Paths may be files or
// directories; directories are searched recursively for *.hcl files.
func (l *Loader) Load(ctx context.Context, overrides map[string]string, paths ...string) (*config.Buildfile, config.Converter, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no Buildfile found in %v", paths)
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	env := environObject(l.environ())
	bf := &config.Buildfile{
		Vars:  make(map[string]cty.Value),
		Tasks: make(map[string]*config.Task),
		Files: files,
	}
	varRanges := make(map[string]hcl.Range)
	var defaultFrom string

	parser := hclparse.NewParser()
	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root schema.File
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if root.Default != "" {
			if bf.Default != "" && bf.Default != root.Default {
				return nil, nil, fmt.Errorf("conflicting default goals: %q in %s and %q in %s", bf.Default, defaultFrom, root.Default, file)
			}
			bf.Default, defaultFrom = root.Default, file
		}

		for _, block := range root.Vars {
			if err := l.translateVars(block, env, bf.Vars, varRanges); err != nil {
				return nil, nil, fmt.Errorf("in %s: %w", file, err)
			}
		}

		for _, t := range root.Tasks {
			task, err := l.translateTask(ctx, file, t)
			if err != nil {
				return nil, nil, err
			}
			if prev, dup := bf.Tasks[task.Name]; dup {
				return nil, nil, fmt.Errorf("task %q declared twice: %s and %s", task.Name, prev.File, task.File)
			}
			bf.Tasks[task.Name] = task
		}
	}

	if err := applyOverrides(bf.Vars, overrides); err != nil {
		return nil, nil, err
	}

	logger.Debug("HCL loading complete.", "tasks", len(bf.Tasks), "vars", len(bf.Vars), "default", bf.Default)
	return bf, NewConverter(bf.Vars, env), nil
}

// translateVars evaluates a vars block against the environment only.
func (l *Loader) translateVars(block *schema.Vars, env cty.Value, into map[string]cty.Value, ranges map[string]hcl.Range) error {
	attrs, diags := block.Body.JustAttributes()
	if diags.HasErrors() {
		return diags
	}
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": env},
		Functions: functions(),
	}
	for name, attr := range attrs {
		if prev, dup := ranges[name]; dup {
			return fmt.Errorf("variable %q declared twice: %s and %s", name, prev, attr.Range)
		}
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return diags
		}
		into[name] = val
		ranges[name] = attr.Range
	}
	return nil
}

// applyOverrides replaces declared variables with CLI values, converting the
// string to the declared value's type where possible.
func applyOverrides(vars map[string]cty.Value, overrides map[string]string) error {
	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		declared, ok := vars[name]
		if !ok {
			return fmt.Errorf("--var %s: no such variable in Buildfile", name)
		}
		val := cty.StringVal(overrides[name])
		if declared.Type().IsPrimitiveType() && declared.Type() != cty.String {
			converted, err := convert.Convert(val, declared.Type())
			if err != nil {
				return fmt.Errorf("--var %s: %w", name, err)
			}
			val = converted
		}
		vars[name] = val
	}
	return nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl
// files found.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, wasSeen := seen[p]; !wasSeen {
			allFiles = append(allFiles, p)
			seen[p] = struct{}{}
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue // It's not an error if a configured path doesn't exist.
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		if !info.IsDir() {
			add(path)
			continue
		}
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, p := range found {
			add(p)
		}
	}
	return allFiles, nil
}
