package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/process"
)

// ErrAborted is wrapped by the error Run returns when a failure aborted the
// run.
var ErrAborted = errors.New("run aborted")

// State is the lifecycle state of a task within one run.
type State string

const (
	Pending   State = "pending"
	Running   State = "running"
	Succeeded State = "succeeded"
	Failed    State = "failed"
)

// Status is the aggregate outcome of a run.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	// StatusDegraded means some task failed without aborting the run.
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// TaskError wraps the failure of a single task.
type TaskError struct {
	Task   string
	Action string
	Policy config.Policy
	Err    error
}

func (e *TaskError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("task %q: action %s: %v", e.Task, e.Action, e.Err)
	}
	return fmt.Sprintf("task %q: %v", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// TaskResult is the outcome of one task that started.
type TaskResult struct {
	Name     string        `json:"name" yaml:"name"`
	State    State         `json:"state" yaml:"state"`
	Err      error         `json:"-" yaml:"-"`
	Skipped  int           `json:"skipped_actions,omitempty" yaml:"skipped_actions,omitempty"`
	Start    time.Time     `json:"start" yaml:"start"`
	End      time.Time     `json:"end" yaml:"end"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Report summarises a run.
type Report struct {
	Goals   []string
	Mode    config.Mode
	Profile string
	Status  Status
	// Tasks holds every task that started, in completion order.
	Tasks []TaskResult
	// NotRun lists tasks of the closure that never started.
	NotRun []string
	// Err is the root cause when Status is StatusFailed.
	Err      error
	Start    time.Time
	Duration time.Duration
}

// Task returns the result for name, if it started.
func (r *Report) Task(name string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.Name == name {
			return t, true
		}
	}
	return TaskResult{}, false
}

// Failed returns the results of failed tasks.
func (r *Report) Failed() []TaskResult {
	var out []TaskResult
	for _, t := range r.Tasks {
		if t.State == Failed {
			out = append(out, t)
		}
	}
	return out
}

// Order returns the names of started tasks in completion order.
func (r *Report) Order() []string {
	out := make([]string, len(r.Tasks))
	for i, t := range r.Tasks {
		out[i] = t.Name
	}
	return out
}

// ExitCode returns the exit code of the external tool behind a fatal
// task's failure. ok is false for any other error.
func ExitCode(err error) (code int, ok bool) {
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Policy != config.PolicyFatal {
		return 0, false
	}
	var exitErr *process.ExitError
	if errors.As(taskErr.Err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}
