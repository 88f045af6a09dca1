// Package download implements the `download` action, which fetches a URL
// into a file. The file is replaced atomically, so an interrupted download
// never leaves a truncated output behind.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/ctxlog"
	"github.com/vk/taskgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the arguments of the download action.
type Input struct {
	URL     string            `arg:"url,required"`
	Output  string            `arg:"output,required"`
	Timeout time.Duration     `arg:"timeout"`
	Headers map[string]string `arg:"headers"`
	// Executable marks the file as executable, e.g. for driver binaries.
	Executable bool `arg:"executable"`
}

// OnRunDownload is the handler for the `download` action.
func OnRunDownload(ctx context.Context, env *action.Env, input *Input) error {
	logger := ctxlog.FromContext(ctx)

	client := env.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	if input.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, input.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, input.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range input.Headers {
		req.Header.Set(k, v)
	}

	logger.Info("Downloading", "url", input.URL, "output", input.Output)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download %s failed with status: %s", input.URL, resp.Status)
	}

	output := env.Path(input.Output)
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(output), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	mode := os.FileMode(0o644)
	if input.Executable {
		mode = 0o755
	}
	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), output); err != nil {
		return err
	}

	logger.Info("Download finished", "status", resp.Status, "bytes", n)
	return nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterAction("download", &registry.RegisteredAction{
		NewInput:  func() any { return new(Input) },
		InputType: reflect.TypeOf(Input{}),
		Fn:        OnRunDownload,
	})
}
