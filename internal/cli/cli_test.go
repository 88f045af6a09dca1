package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskgrid/internal/task"
	"gopkg.in/yaml.v3"
)

const greetBuildfile = `
default = "greet"

vars {
  name = "world"
}

task "prepare" {
  description = "Nothing to prepare"
}

task "greet" {
  description = "Say hello"
  depends_on  = ["prepare"]
  action "print" {
    message = "hello ${var.name} (${run.profile}, ci=${run.ci})"
  }
}
`

func writeBuildfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Buildfile.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := Execute(context.Background(), args, &out, &errOut)
	return out.String(), errOut.String(), err
}

func requireExitCode(t *testing.T, err error, code int) *ExitError {
	t.Helper()
	require.Error(t, err)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected *ExitError, got %T", err)
	assert.Equal(t, code, exitErr.Code, "message: %s", exitErr.Message)
	return exitErr
}

func TestExecute_Version(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "taskgrid dev\n", out)
}

func TestExecute_Help(t *testing.T) {
	out, _, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "watch")
}

func TestExecute_UnknownCommand(t *testing.T) {
	exitErr := requireExitCode(t, executeErr(t, "rnu"), ExitUsage)
	assert.Contains(t, exitErr.Message, `unknown command "rnu", did you mean "run"?`)

	exitErr = requireExitCode(t, executeErr(t, "zzz"), ExitUsage)
	assert.Contains(t, exitErr.Message, `unknown command "zzz"`)

	out, _, err := execute(t)
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
}

func executeErr(t *testing.T, args ...string) error {
	t.Helper()
	_, _, err := execute(t, args...)
	return err
}

func TestExecute_UsageErrors(t *testing.T) {
	path := writeBuildfile(t, greetBuildfile)
	cases := map[string][]string{
		"unknown flag":       {"run", "--this-is-not-a-valid-flag"},
		"unknown command":    {"bogus"},
		"too many args":      {"watch", "a", "b", "-f", path},
		"invalid log format": {"run", "-f", path, "--log-format", "xml"},
		"invalid mode":       {"run", "-f", path, "--mode", "yolo"},
		"malformed var":      {"run", "-f", path, "--var", "novalue"},
		"invalid output":     {"inspect", "-f", path, "-o", "toml"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := execute(t, args...)
			requireExitCode(t, err, ExitUsage)
		})
	}
}

func TestExecute_RunDefaultGoal(t *testing.T) {
	path := writeBuildfile(t, greetBuildfile)

	out, errOut, err := execute(t, "run", "-f", path, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "[greet] hello world (dev, ci=")
	assert.Contains(t, errOut, "greet succeeded")
}

func TestExecute_RunWithVarAndProfile(t *testing.T) {
	path := writeBuildfile(t, greetBuildfile)

	out, _, err := execute(t, "run", "greet", "-f", path, "--var", "name=a,b", "--profile", "prod", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "hello a,b (prod,")
}

func TestExecute_UndeclaredVarIsConfigError(t *testing.T) {
	path := writeBuildfile(t, greetBuildfile)

	_, _, err := execute(t, "run", "-f", path, "--var", "nope=1", "--log-level", "error")
	requireExitCode(t, err, ExitFailure)
}

func TestExecute_EnvironmentOverrides(t *testing.T) {
	path := writeBuildfile(t, greetBuildfile)
	t.Setenv("TASKGRID_FILE", path)
	t.Setenv("TASKGRID_PROFILE", "staging")
	t.Setenv("TASKGRID_LOG_LEVEL", "error")
	t.Setenv("CI", "true")

	out, _, err := execute(t, "run")
	require.NoError(t, err)
	assert.Contains(t, out, "hello world (staging, ci=true)")
}

func TestExecute_EnvFile(t *testing.T) {
	dir := t.TempDir()
	path := writeBuildfile(t, `
task "who" {
  action "print" {
    message = "from ${env.TASKGRID_TEST_WHO}"
  }
}
`)
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("TASKGRID_TEST_WHO=dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TASKGRID_TEST_WHO") })

	out, _, err := execute(t, "run", "who", "-f", path, "--env-file", envFile, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "[who] from dotenv")

	_, _, err = execute(t, "run", "who", "-f", path, "--env-file", filepath.Join(dir, "missing.env"))
	requireExitCode(t, err, ExitFailure)
}

func TestExecute_ExitCodes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	path := writeBuildfile(t, `
task "lint" {
  action "exec" {
    command = "sh"
    args    = ["-c", "exit 1"]
    quiet   = true
  }
}

task "e2e" {
  policy = "fatal"
  action "exec" {
    command = "sh"
    args    = ["-c", "exit 7"]
    quiet   = true
  }
}
`)

	t.Run("fail-fast failure exits 1", func(t *testing.T) {
		_, errOut, err := execute(t, "run", "lint", "-f", path, "--log-level", "error")
		requireExitCode(t, err, ExitFailure)
		assert.Contains(t, errOut, "lint failed")
	})

	t.Run("degraded run exits 0", func(t *testing.T) {
		_, errOut, err := execute(t, "run", "lint", "-f", path, "--mode", "fail-soft", "--log-level", "error")
		require.NoError(t, err)
		assert.Contains(t, errOut, "finished with failures")
	})

	t.Run("fatal task exits with the tool's code", func(t *testing.T) {
		_, _, err := execute(t, "run", "e2e", "-f", path, "--mode", "fail-soft", "--log-level", "error")
		requireExitCode(t, err, 7)
	})
}

func TestExecute_List(t *testing.T) {
	path := writeBuildfile(t, greetBuildfile)

	out, _, err := execute(t, "list", "-f", path, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "greet    Say hello (default)\nprepare  Nothing to prepare\n", out)
}

func TestExecute_Inspect(t *testing.T) {
	path := writeBuildfile(t, greetBuildfile)

	out, _, err := execute(t, "inspect", "greet", "-o", "json", "-f", path, "--log-level", "error")
	require.NoError(t, err)
	var entries []task.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "prepare", entries[0].Name)
	assert.Equal(t, []string{"greet"}, entries[0].Dependents)
	assert.Equal(t, []string{"print"}, entries[1].Actions)

	out, _, err = execute(t, "inspect", "-f", path, "--log-level", "error")
	require.NoError(t, err)
	var fromYAML []task.Entry
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	assert.Equal(t, entries, fromYAML)
}

func TestExecute_Validate(t *testing.T) {
	path := writeBuildfile(t, greetBuildfile)
	out, _, err := execute(t, "validate", "-f", path, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Buildfile is valid: 2 tasks")

	cyclic := writeBuildfile(t, `
task "a" { depends_on = ["b"] }
task "b" { depends_on = ["a"] }
`)
	_, _, err = execute(t, "validate", "-f", cyclic, "--log-level", "error")
	exitErr := requireExitCode(t, err, ExitFailure)
	assert.Contains(t, exitErr.Message, "cycle detected")
}

func TestParseVars(t *testing.T) {
	vars, err := parseVars([]string{"a=1", "b=x=y", "c="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y", "c": ""}, vars)

	_, err = parseVars([]string{"=1"})
	assert.Error(t, err)
}
