package task

import (
	"github.com/vk/taskgrid/internal/config"
)

// Entry is the serialisable view of a task used by `taskgrid inspect`.
type Entry struct {
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	DependsOn   []string     `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Sequence    []string     `json:"sequence,omitempty" yaml:"sequence,omitempty"`
	Dependents  []string     `json:"dependents,omitempty" yaml:"dependents,omitempty"`
	Policy      string       `json:"policy" yaml:"policy"`
	Profile     string       `json:"profile,omitempty" yaml:"profile,omitempty"`
	Actions     []string     `json:"actions,omitempty" yaml:"actions,omitempty"`
	Watches     []WatchEntry `json:"watches,omitempty" yaml:"watches,omitempty"`
	File        string       `json:"file,omitempty" yaml:"file,omitempty"`
}

// WatchEntry is the serialisable view of a watch block.
type WatchEntry struct {
	Paths    []string `json:"paths" yaml:"paths"`
	Run      []string `json:"run" yaml:"run"`
	Debounce string   `json:"debounce" yaml:"debounce"`
}

// Describe returns entries for the goals' closure, or for the whole table
// when no goal is given. Entries are in dependency order.
func (t *Table) Describe(goals ...string) ([]Entry, error) {
	var (
		names []string
		err   error
	)
	if len(goals) == 0 {
		names, err = t.graph.TopologicalOrder()
	} else {
		names, err = t.Closure(goals...)
	}
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, t.describe(t.tasks[name]))
	}
	return entries, nil
}

func (t *Table) describe(task *config.Task) Entry {
	dependents, _ := t.graph.Dependents(task.Name)
	e := Entry{
		Name:        task.Name,
		Description: task.Description,
		DependsOn:   task.DependsOn,
		Sequence:    task.Sequence,
		Dependents:  dependents,
		Policy:      string(task.Policy),
		Profile:     task.Profile,
		File:        task.File,
	}
	for _, a := range task.Actions {
		e.Actions = append(e.Actions, a.Type)
	}
	for _, w := range task.Watches {
		e.Watches = append(e.Watches, WatchEntry{Paths: w.Paths, Run: w.Run, Debounce: w.Debounce.String()})
	}
	return e
}
