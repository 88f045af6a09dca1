// Package inject implements the `inject` action: it rewrites an HTML page so
// that it references the built stylesheets and scripts. Tags added by a
// previous run are replaced, so injecting twice yields the same page.
package inject

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/registry"
)

// marker tags every element this action adds.
const marker = "data-taskgrid-inject"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the inject action.
type Input struct {
	Index   string   `arg:"index,required"`
	CSS     []string `arg:"css"`
	JS      []string `arg:"js"`
	Exclude []string `arg:"exclude"`
	// Root is the directory URLs are made relative to. Defaults to the
	// index's directory.
	Root string `arg:"root"`
	// Prefix is prepended to every URL, e.g. "/".
	Prefix string `arg:"prefix"`
}

// OnRunInject is the handler for the `inject` action.
func OnRunInject(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)

	index := env.Path(input.Index)
	root := env.Path(input.Root)
	if input.Root == "" {
		root = filepath.Dir(index)
	}

	css, err := urls(env.WorkDir, root, input.Prefix, input.CSS, input.Exclude)
	if err != nil {
		return err
	}
	js, err := urls(env.WorkDir, root, input.Prefix, input.JS, input.Exclude)
	if err != nil {
		return err
	}

	page, err := os.ReadFile(index)
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", input.Index, err)
	}

	doc.Find("[" + marker + "]").Remove()

	var links strings.Builder
	for _, u := range css {
		fmt.Fprintf(&links, `<link rel="stylesheet" href="%s" %s="css">`, html.EscapeString(u), marker)
	}
	doc.Find("head").AppendHtml(links.String())

	var scripts strings.Builder
	for _, u := range js {
		fmt.Fprintf(&scripts, `<script src="%s" %s="js"></script>`, html.EscapeString(u), marker)
	}
	doc.Find("body").AppendHtml(scripts.String())

	out, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", input.Index, err)
	}
	info, err := os.Stat(index)
	if err != nil {
		return err
	}
	if err := os.WriteFile(index, []byte(out), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", input.Index, err)
	}

	logger.Info("Injected assets", "index", input.Index, "css", len(css), "js", len(js))
	return nil
}

// urls expands patterns in order and turns each file into a URL relative to
// root.
func urls(workDir, root, prefix string, patterns, exclude []string) ([]string, error) {
	neg := make([]string, 0, len(exclude))
	for _, e := range exclude {
		neg = append(neg, "!"+strings.TrimPrefix(e, "!"))
	}

	seen := make(map[string]bool)
	var out []string
	for _, p := range patterns {
		files, err := fsutil.Files(workDir, append([]string{p}, neg...))
		if err != nil {
			return nil, fmt.Errorf("failed to expand %q: %w", p, err)
		}
		for _, f := range files {
			rel, err := filepath.Rel(root, f)
			if err != nil {
				return nil, err
			}
			u := path.Join(prefix, filepath.ToSlash(rel))
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("inject", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunInject,
	})
}
