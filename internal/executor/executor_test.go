package executor

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskgrid/internal/action"
	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/ctxlog"
	tghcl "github.com/vk/taskgrid/internal/hcl"
	"github.com/vk/taskgrid/internal/process"
	"github.com/vk/taskgrid/internal/registry"
	"github.com/vk/taskgrid/internal/task"
	"github.com/zclconf/go-cty/cty"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// --- test harness ---

type stepInput struct {
	Fail     bool          `arg:"fail"`
	ExitCode int           `arg:"exit_code"`
	Sleep    time.Duration `arg:"sleep"`
}

type recorder struct {
	mu         sync.Mutex
	events     []string
	running    atomic.Int32
	maxRunning atomic.Int32
}

func (rc *recorder) add(ev string) {
	rc.mu.Lock()
	rc.events = append(rc.events, ev)
	rc.mu.Unlock()
}

func (rc *recorder) Events() []string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]string(nil), rc.events...)
}

func (rc *recorder) count(ev string) int {
	n := 0
	for _, e := range rc.Events() {
		if e == ev {
			n++
		}
	}
	return n
}

func (rc *recorder) index(ev string) int {
	return slices.Index(rc.Events(), ev)
}

func (rc *recorder) step(ctx context.Context, env *action.Env, in *stepInput) error {
	cur := rc.running.Add(1)
	defer rc.running.Add(-1)
	for {
		prev := rc.maxRunning.Load()
		if cur <= prev || rc.maxRunning.CompareAndSwap(prev, cur) {
			break
		}
	}

	rc.add("start:" + env.Task)
	if in.Sleep > 0 {
		select {
		case <-time.After(in.Sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if in.ExitCode != 0 {
		return &process.ExitError{Command: "tool", Code: in.ExitCode}
	}
	if in.Fail {
		return errors.New("boom")
	}
	rc.add("end:" + env.Task)
	return nil
}

type taskOpt func(*config.Task)

func deps(names ...string) taskOpt { return func(t *config.Task) { t.DependsOn = names } }
func seq(names ...string) taskOpt  { return func(t *config.Task) { t.Sequence = names } }
func policy(p config.Policy) taskOpt {
	return func(t *config.Task) { t.Policy = p }
}
func profile(p string) taskOpt { return func(t *config.Task) { t.Profile = p } }
func noActions() taskOpt       { return func(t *config.Task) { t.Actions = nil } }

// withStep replaces the default action with one carrying args.
func withStep(args map[string]cty.Value) taskOpt {
	return func(t *config.Task) {
		t.Actions = []*config.Action{stepAction(args)}
	}
}

func when(t *testing.T, src string) taskOpt {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "when.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return func(task *config.Task) { task.Actions[0].When = expr }
}

func stepAction(args map[string]cty.Value) *config.Action {
	exprs := make(map[string]hcl.Expression, len(args))
	for k, v := range args {
		exprs[k] = hcl.StaticExpr(v, hcl.Range{})
	}
	return &config.Action{Type: "step", Arguments: exprs}
}

func tk(name string, opts ...taskOpt) *config.Task {
	t := &config.Task{Name: name, Policy: config.PolicyDefault, Actions: []*config.Action{stepAction(nil)}}
	for _, o := range opts {
		o(t)
	}
	return t
}

func sleep(d time.Duration) map[string]cty.Value {
	return map[string]cty.Value{"sleep": cty.StringVal(d.String())}
}

var failArgs = map[string]cty.Value{"fail": cty.True}

type fixture struct {
	rec  *recorder
	exec *Executor
}

func newFixture(t *testing.T, workers int, tasks ...*config.Task) *fixture {
	t.Helper()
	bf := &config.Buildfile{Tasks: map[string]*config.Task{}}
	for _, tt := range tasks {
		bf.Tasks[tt.Name] = tt
	}
	table, err := task.NewTable(bf)
	require.NoError(t, err)

	rec := &recorder{}
	reg := registry.New()
	reg.RegisterAction("step", &registry.RegisteredAction{
		NewInput:  func() any { return new(stepInput) },
		InputType: reflect.TypeOf(stepInput{}),
		Fn:        rec.step,
	})
	require.NoError(t, reg.ValidateRegistry(testCtx()))
	require.NoError(t, reg.ValidateBuildfile(testCtx(), bf))

	return &fixture{
		rec:  rec,
		exec: New(table, reg, tghcl.NewConverter(nil, cty.NilVal), Options{Workers: workers}),
	}
}

func testCtx() context.Context {
	return ctxlog.Discard(context.Background())
}

var failFast = config.RunSettings{Mode: config.ModeFailFast}
var failSoft = config.RunSettings{Mode: config.ModeFailSoft}

func diamond(opts map[string][]taskOpt) []*config.Task {
	return []*config.Task{
		tk("clean", opts["clean"]...),
		tk("compile:css", append([]taskOpt{deps("clean")}, opts["compile:css"]...)...),
		tk("compile:js", append([]taskOpt{deps("clean")}, opts["compile:js"]...)...),
		tk("build", append([]taskOpt{deps("compile:css", "compile:js")}, opts["build"]...)...),
	}
}

// --- tests ---

func TestRun_DiamondExecutesOnce(t *testing.T) {
	f := newFixture(t, 4, diamond(nil)...)

	report, err := f.exec.Run(testCtx(), []string{"build"}, failFast)
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, report.Status)
	assert.Len(t, report.Tasks, 4)
	assert.Empty(t, report.NotRun)

	assert.Equal(t, 1, f.rec.count("start:clean"))
	assert.Equal(t, 1, f.rec.count("start:build"))
	assert.Equal(t, "build", report.Order()[3])
	assert.Equal(t, "clean", report.Order()[0])
	for _, r := range report.Tasks {
		assert.Equal(t, Succeeded, r.State, r.Name)
		assert.False(t, r.End.Before(r.Start))
	}
}

func TestRun_DependentWaitsForAllPrerequisites(t *testing.T) {
	f := newFixture(t, 4, diamond(map[string][]taskOpt{
		"compile:css": {withStep(sleep(60 * time.Millisecond))},
		"compile:js":  {withStep(sleep(10 * time.Millisecond))},
	})...)

	_, err := f.exec.Run(testCtx(), []string{"build"}, failFast)
	require.NoError(t, err)

	startBuild := f.rec.index("start:build")
	require.NotEqual(t, -1, startBuild)
	assert.Less(t, f.rec.index("end:compile:css"), startBuild)
	assert.Less(t, f.rec.index("end:compile:js"), startBuild)
	assert.Less(t, f.rec.index("end:clean"), f.rec.index("start:compile:css"))
	assert.Less(t, f.rec.index("end:clean"), f.rec.index("start:compile:js"))
}

func TestRun_FailFastStopsLaterTasks(t *testing.T) {
	f := newFixture(t, 4, diamond(map[string][]taskOpt{
		"compile:css": {withStep(failArgs)},
		"compile:js":  {withStep(sleep(2 * time.Second))},
	})...)

	start := time.Now()
	report, err := f.exec.Run(testCtx(), []string{"build"}, failFast)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "in-flight sibling should be cancelled")

	assert.ErrorIs(t, err, ErrAborted)
	var taskErr *TaskError
	require.ErrorAs(t, err, &taskErr)
	assert.Equal(t, "compile:css", taskErr.Task)
	assert.EqualError(t, taskErr, `task "compile:css": action #1 (step): boom`)

	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, 0, f.rec.count("start:build"))
	assert.Contains(t, report.NotRun, "build")
	_, started := report.Task("build")
	assert.False(t, started)
}

func TestRun_FailSoftContinues(t *testing.T) {
	f := newFixture(t, 4, diamond(map[string][]taskOpt{
		"compile:css": {withStep(failArgs)},
	})...)

	report, err := f.exec.Run(testCtx(), []string{"build"}, failSoft)
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, 1, f.rec.count("end:build"))

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "compile:css", failed[0].Name)
	assert.ErrorContains(t, failed[0].Err, "boom")

	css, ok := report.Task("compile:css")
	require.True(t, ok)
	assert.Equal(t, Failed, css.State)
}

func TestRun_AdvisoryNeverAborts(t *testing.T) {
	f := newFixture(t, 2,
		tk("lint", policy(config.PolicyAdvisory), withStep(failArgs)),
		tk("build", deps("lint")),
	)

	report, err := f.exec.Run(testCtx(), []string{"build"}, failFast)
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, 1, f.rec.count("end:build"))
}

func TestRun_FatalPropagatesExitCode(t *testing.T) {
	f := newFixture(t, 2,
		tk("e2e", policy(config.PolicyFatal), withStep(map[string]cty.Value{"exit_code": cty.NumberIntVal(3)})),
		tk("after", deps("e2e")),
		tk("soft", withStep(map[string]cty.Value{"exit_code": cty.NumberIntVal(4)})),
	)

	t.Run("fatal aborts even in fail-soft", func(t *testing.T) {
		report, err := f.exec.Run(testCtx(), []string{"after"}, failSoft)
		require.Error(t, err)
		assert.Equal(t, StatusFailed, report.Status)
		assert.Equal(t, 0, f.rec.count("start:after"))

		code, ok := ExitCode(err)
		assert.True(t, ok)
		assert.Equal(t, 3, code)
	})

	t.Run("default policy has no exit code", func(t *testing.T) {
		_, err := f.exec.Run(testCtx(), []string{"soft"}, failFast)
		require.Error(t, err)
		_, ok := ExitCode(err)
		assert.False(t, ok)
		var exitErr *process.ExitError
		assert.ErrorAs(t, err, &exitErr)
	})
}

func TestRun_WhenSkipsAction(t *testing.T) {
	f := newFixture(t, 2,
		tk("minify", when(t, `run.profile == "prod"`)),
		tk("build:dev", deps("minify"), noActions()),
		tk("build:prod", deps("minify"), noActions(), profile("prod")),
	)

	report, err := f.exec.Run(testCtx(), []string{"build:dev"}, failFast)
	require.NoError(t, err)
	assert.Equal(t, "dev", report.Profile)
	minify, _ := report.Task("minify")
	assert.Equal(t, 1, minify.Skipped)
	assert.Equal(t, 0, f.rec.count("start:minify"))

	report, err = f.exec.Run(testCtx(), []string{"build:prod"}, failFast)
	require.NoError(t, err)
	assert.Equal(t, "prod", report.Profile)
	assert.Equal(t, 1, f.rec.count("start:minify"))
}

func TestRun_SequenceOrdering(t *testing.T) {
	f := newFixture(t, 4,
		tk("clean"),
		tk("bump", withStep(sleep(20*time.Millisecond))),
		tk("changelog", withStep(sleep(5*time.Millisecond))),
		tk("tag"),
		tk("release", deps("clean"), seq("bump", "changelog", "tag")),
	)

	_, err := f.exec.Run(testCtx(), []string{"release"}, failFast)
	require.NoError(t, err)

	want := []string{
		"start:clean", "end:clean",
		"start:bump", "end:bump",
		"start:changelog", "end:changelog",
		"start:tag", "end:tag",
		"start:release", "end:release",
	}
	assert.Equal(t, want, f.rec.Events())
}

func TestRun_SequenceStopsOnFailFast(t *testing.T) {
	f := newFixture(t, 2,
		tk("bump", withStep(failArgs)),
		tk("tag"),
		tk("release", seq("bump", "tag")),
	)
	report, err := f.exec.Run(testCtx(), []string{"release"}, failFast)
	require.Error(t, err)
	assert.Equal(t, []string{"tag", "release"}, report.NotRun)
	assert.Equal(t, 0, f.rec.count("start:tag"))
}

func TestRun_UnknownGoalHasNoSideEffects(t *testing.T) {
	f := newFixture(t, 2, tk("clean"), tk("build", deps("clean")))

	report, err := f.exec.Run(testCtx(), []string{"build", "deploy"}, failFast)
	assert.Nil(t, report)
	var unknown *task.UnknownTaskError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "deploy", unknown.Name)
	assert.ErrorIs(t, err, task.ErrUnknownTask)
	assert.Empty(t, f.rec.Events())
}

func TestRun_DefaultAndMultipleGoals(t *testing.T) {
	bfTasks := []*config.Task{tk("clean"), tk("a", deps("clean")), tk("b", deps("clean"))}
	f := newFixture(t, 2, bfTasks...)

	_, err := f.exec.Run(testCtx(), nil, failFast)
	assert.ErrorContains(t, err, "no goal given")

	report, err := f.exec.Run(testCtx(), []string{"a", "b"}, failFast)
	require.NoError(t, err)
	assert.Equal(t, 1, f.rec.count("start:clean"))
	assert.Equal(t, []string{"clean", "a", "b"}, report.Order())
}

func TestRun_ProfileFromFirstGoalDeclaringOne(t *testing.T) {
	f := newFixture(t, 2,
		tk("clean"),
		tk("minify", when(t, `run.profile == "prod"`)),
		tk("build:prod", deps("minify"), noActions(), profile("prod")),
		tk("build:test", noActions(), profile("test")),
	)

	report, err := f.exec.Run(testCtx(), []string{"clean", "build:prod"}, failFast)
	require.NoError(t, err)
	assert.Equal(t, "prod", report.Profile)
	assert.Equal(t, 1, f.rec.count("start:minify"))

	report, err = f.exec.Run(testCtx(), []string{"clean", "build:prod", "build:test"}, failFast)
	require.NoError(t, err)
	assert.Equal(t, "prod", report.Profile)
}

func TestRun_WorkerLimit(t *testing.T) {
	var leaves []string
	tasks := []*config.Task{}
	for _, name := range []string{"l1", "l2", "l3", "l4", "l5", "l6"} {
		leaves = append(leaves, name)
		tasks = append(tasks, tk(name, withStep(sleep(30*time.Millisecond))))
	}
	tasks = append(tasks, tk("all", deps(leaves...), noActions()))

	f := newFixture(t, 2, tasks...)
	report, err := f.exec.Run(testCtx(), []string{"all"}, failFast)
	require.NoError(t, err)
	assert.Len(t, report.Tasks, 7)
	assert.LessOrEqual(t, f.rec.maxRunning.Load(), int32(2))
	assert.GreaterOrEqual(t, f.rec.maxRunning.Load(), int32(1))
}

func TestRun_DecodeErrorFailsTask(t *testing.T) {
	f := newFixture(t, 1, tk("bad", withStep(map[string]cty.Value{"sleep": cty.StringVal("forever")})))
	report, err := f.exec.Run(testCtx(), []string{"bad"}, failSoft)
	require.NoError(t, err)
	assert.Equal(t, StatusDegraded, report.Status)
	assert.ErrorContains(t, report.Failed()[0].Err, "failed to decode arguments")
}

func TestRun_ParentCancellation(t *testing.T) {
	f := newFixture(t, 1, tk("slow", withStep(sleep(5*time.Second))), tk("next", deps("slow")))

	ctx, cancel := context.WithTimeout(testCtx(), 50*time.Millisecond)
	defer cancel()
	report, err := f.exec.Run(ctx, []string{"next"}, failSoft)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, 0, f.rec.count("start:next"))
}

type fakeObserver struct {
	mu   sync.Mutex
	seen map[string]string
}

func (o *fakeObserver) ObserveTask(name, state string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen[name] = state
}

func TestRun_TracingAndObserver(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	obs := &fakeObserver{seen: map[string]string{}}

	bf := &config.Buildfile{Tasks: map[string]*config.Task{
		"clean": tk("clean"),
		"lint":  tk("lint", policy(config.PolicyAdvisory), withStep(failArgs)),
		"build": tk("build", deps("clean", "lint")),
	}}
	table, err := task.NewTable(bf)
	require.NoError(t, err)
	rec := &recorder{}
	reg := registry.New()
	reg.RegisterAction("step", &registry.RegisteredAction{
		NewInput:  func() any { return new(stepInput) },
		InputType: reflect.TypeOf(stepInput{}),
		Fn:        rec.step,
	})
	exec := New(table, reg, tghcl.NewConverter(nil, cty.NilVal), Options{
		Workers:  2,
		Tracer:   tp.Tracer("test"),
		Observer: obs,
	})

	_, err = exec.Run(testCtx(), []string{"build"}, failFast)
	require.NoError(t, err)

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	assert.ElementsMatch(t, []string{"task clean", "task lint", "task build", "run"}, names)
	assert.Equal(t, map[string]string{"clean": "succeeded", "lint": "failed", "build": "succeeded"}, obs.seen)
}
