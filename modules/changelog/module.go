// Package changelog implements the `changelog` action. It collects the
// conventional commits (feat, fix, perf, ...) since the last tag and prepends
// a release section to the changelog file.
package changelog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/fsutil"
	"github.com/vk/taskgrid/internal/process"
	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/modules/version"
)

// now is replaced in tests.
var now = time.Now

// logFormat separates subject, hash and body of each commit.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
	logFormat = "--pretty=format:%s" + fieldSep + "%h" + fieldSep + "%b" + recordSep
)

var subjectPattern = regexp.MustCompile(`^(\w+)(?:\(([^)]*)\))?(!)?:\s*(.+)$`)

// sections lists the rendered commit types in output order.
var sections = []struct{ kind, title string }{
	{"feat", "Features"},
	{"fix", "Bug Fixes"},
	{"perf", "Performance Improvements"},
	{"revert", "Reverts"},
}

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the changelog action.
type Input struct {
	File string `arg:"file"`
	// Version is the release heading. Defaults to the manifest's version.
	Version  string `arg:"version"`
	Manifest string `arg:"manifest"`
	// Since is the git ref to start from. Defaults to the latest tag.
	Since string `arg:"since"`
}

type commit struct {
	kind, scope, subject, hash string
	breaking                   bool
}

// OnRunChangelog is the handler for the `changelog` action.
func OnRunChangelog(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)
	if env.Process == nil {
		return fmt.Errorf("no process runner configured")
	}

	file := input.File
	if file == "" {
		file = "CHANGELOG.md"
	}
	ver := input.Version
	if ver == "" {
		manifest := input.Manifest
		if manifest == "" {
			manifest = version.DefaultManifest
		}
		v, err := version.Read(env.Path(manifest))
		if err != nil {
			return err
		}
		ver = v
	}

	since := input.Since
	if since == "" {
		res, err := env.Process.Run(ctx, process.Command{Name: "git", Args: []string{"describe", "--tags", "--abbrev=0"}, Dir: env.WorkDir})
		if err == nil {
			since = strings.TrimSpace(string(res.Stdout))
		} else {
			logger.Debug("No previous tag, using the full history.", "error", err)
		}
	}

	args := []string{"log", logFormat}
	if since != "" {
		args = append(args, since+"..HEAD")
	}
	res, err := env.Process.Run(ctx, process.Command{Name: "git", Args: args, Dir: env.WorkDir})
	if err != nil {
		return fmt.Errorf("failed to read git history: %w", err)
	}

	commits := parse(string(res.Stdout))
	section := render(ver, now(), commits)

	path := env.Path(file)
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	if err := fsutil.WriteFile(path, append([]byte(section), existing...)); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}

	logger.Info("Changelog updated", "file", file, "version", ver, "commits", len(commits))
	return nil
}

func parse(log string) []commit {
	var out []commit
	for _, rec := range strings.Split(log, recordSep) {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		fields := strings.SplitN(rec, fieldSep, 3)
		m := subjectPattern.FindStringSubmatch(strings.TrimSpace(fields[0]))
		if m == nil {
			continue
		}
		c := commit{kind: m[1], scope: m[2], subject: m[4], breaking: m[3] == "!"}
		if len(fields) > 1 {
			c.hash = fields[1]
		}
		if len(fields) > 2 && strings.Contains(fields[2], "BREAKING CHANGE") {
			c.breaking = true
		}
		out = append(out, c)
	}
	return out
}

func render(ver string, date time.Time, commits []commit) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "## %s (%s)\n\n", ver, date.Format("2006-01-02"))

	for _, s := range sections {
		var lines []string
		for _, c := range commits {
			if c.kind == s.kind {
				lines = append(lines, line(c))
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", s.title, strings.Join(lines, "\n"))
	}

	var breaking []string
	for _, c := range commits {
		if c.breaking {
			breaking = append(breaking, line(c))
		}
	}
	if len(breaking) > 0 {
		fmt.Fprintf(&b, "### BREAKING CHANGES\n\n%s\n\n", strings.Join(breaking, "\n"))
	}
	return b.String()
}

func line(c commit) string {
	s := "* "
	if c.scope != "" {
		s += "**" + c.scope + ":** "
	}
	s += c.subject
	if c.hash != "" {
		s += " (" + c.hash + ")"
	}
	return s
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("changelog", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunChangelog,
	})
}
