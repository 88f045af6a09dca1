package app

import (
	"bytes"
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/taskgrid/internal/hcl"
	"github.com/vk/taskgrid/internal/registry"
)

// SafeBuffer is a thread-safe buffer for capturing output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest writes buildfile into a temp directory and returns an app
// loaded from it together with its action output and log buffers. Relative
// paths in actions resolve against that directory.
func SetupAppTest(t *testing.T, buildfile string, cfg Config, modules ...registry.Module) (*App, *SafeBuffer, *SafeBuffer) {
	t.Helper()

	dir := t.TempDir()
	path := dir + string(os.PathSeparator) + "Buildfile.hcl"
	require.NoError(t, os.WriteFile(path, []byte(buildfile), 0o644))

	cfg.BuildfilePaths = []string{path}
	cfg.LogLevel = "debug"
	validated, err := NewConfig(cfg)
	require.NoError(t, err)

	out, logs := &SafeBuffer{}, &SafeBuffer{}
	testApp, err := NewApp(context.Background(), out, logs, validated, hcl.NewLoaderWithEnv(nil), modules...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testApp.Close(context.Background())
		if os.Getenv("TASKGRID_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logs.String())
		}
	})

	return testApp, out, logs
}
