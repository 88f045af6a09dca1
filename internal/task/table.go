package task

import (
	"fmt"
	"sort"

	"github.com/vk/taskgrid/internal/config"
	"github.com/vk/taskgrid/internal/dag"
)

// Table is the validated, read-only set of tasks.
type Table struct {
	tasks       map[string]*config.Task
	graph       *dag.Graph
	defaultGoal string
}

// NewTable validates bf and builds its dependency graph. It fails on
// unknown references and on cycles through depends_on or sequence.
func NewTable(bf *config.Buildfile) (*Table, error) {
	t := &Table{
		tasks:       make(map[string]*config.Task, len(bf.Tasks)),
		graph:       dag.New(),
		defaultGoal: bf.Default,
	}
	for name, task := range bf.Tasks {
		t.tasks[name] = task
		t.graph.AddNode(name)
	}

	names := t.Names()
	if bf.Default != "" {
		if _, ok := t.tasks[bf.Default]; !ok {
			return nil, fmt.Errorf("default goal: %w", t.unknown(bf.Default, "", names))
		}
	}

	for _, name := range names {
		task := t.tasks[name]
		refs := append(append([]string{}, task.DependsOn...), task.Sequence...)
		for _, ref := range refs {
			if _, ok := t.tasks[ref]; !ok {
				return nil, t.unknown(ref, name, names)
			}
			if err := t.graph.AddEdge(ref, name); err != nil {
				return nil, fmt.Errorf("task %q: %w", name, err)
			}
		}
		for _, w := range task.Watches {
			for _, ref := range w.Run {
				if _, ok := t.tasks[ref]; !ok {
					return nil, t.unknown(ref, name, names)
				}
			}
		}
	}

	if err := t.graph.DetectCycles(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) unknown(name, referrer string, names []string) *UnknownTaskError {
	return &UnknownTaskError{Name: name, Referrer: referrer, Suggestion: suggest(name, names)}
}

// Lookup returns the named task or an *UnknownTaskError.
func (t *Table) Lookup(name string) (*config.Task, error) {
	task, ok := t.tasks[name]
	if !ok {
		return nil, t.unknown(name, "", t.Names())
	}
	return task, nil
}

// Names returns every task name, sorted.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.tasks))
	for name := range t.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of tasks.
func (t *Table) Len() int { return len(t.tasks) }

// Default returns the Buildfile's default goal, possibly empty.
func (t *Table) Default() string { return t.defaultGoal }

// Resolve checks every goal exists before anything runs.
func (t *Table) Resolve(goals ...string) ([]*config.Task, error) {
	out := make([]*config.Task, 0, len(goals))
	for _, g := range goals {
		task, err := t.Lookup(g)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}

// Closure returns the goals and everything they reach through depends_on
// and sequence, prerequisites first.
func (t *Table) Closure(goals ...string) ([]string, error) {
	if _, err := t.Resolve(goals...); err != nil {
		return nil, err
	}
	return t.graph.Closure(goals...)
}

// Dependents returns the tasks that list name in depends_on or sequence.
func (t *Table) Dependents(name string) ([]string, error) {
	if _, err := t.Lookup(name); err != nil {
		return nil, err
	}
	return t.graph.Dependents(name)
}

// Watches returns the watch blocks of every task in the goals' closure, in
// closure order.
func (t *Table) Watches(goals ...string) ([]*config.Watch, error) {
	names, err := t.Closure(goals...)
	if err != nil {
		return nil, err
	}
	var out []*config.Watch
	for _, name := range names {
		out = append(out, t.tasks[name].Watches...)
	}
	return out, nil
}
