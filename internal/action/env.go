// Package action defines what an action handler receives besides its
// decoded input: the run settings, the owning task, and the capabilities
// (processes, dev server, HTTP) it may use.
package action

import (
	"context"
	"io"
	"net/http"
	"path/filepath"

	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/process"
)

// ServeOptions configures the development server.
type ServeOptions struct {
	Root string
	Port int
	// Routes maps URL prefixes to directories, e.g. "/node_modules".
	Routes     map[string]string
	LiveReload bool
}

// DevServer is the development server capability. Serve is idempotent: a
// second call while a server is running returns the existing address.
type DevServer interface {
	Serve(ctx context.Context, opts ServeOptions) (addr string, err error)
	// Reload notifies connected browsers and returns how many were told.
	Reload(ctx context.Context) int
}

// Env is handed to every action handler.
type Env struct {
	Settings config.RunSettings
	// Task is the name of the task running the action.
	Task    string
	Process process.Runner
	Dev     DevServer
	HTTP    *http.Client
	// Stdout receives user-facing output such as print messages.
	Stdout io.Writer
	// WorkDir is the base for relative paths, normally the Buildfile's
	// directory.
	WorkDir string
}

// Path resolves p against WorkDir.
func (e *Env) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || e.WorkDir == "" {
		return p
	}
	return filepath.Join(e.WorkDir, p)
}

// Paths resolves every entry of ps against WorkDir.
func (e *Env) Paths(ps []string) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = e.Path(p)
	}
	return out
}
