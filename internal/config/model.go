package config

import (
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// Buildfile is the merged result of every Buildfile loaded at startup.
type Buildfile struct {
	// Default is the goal run when the CLI receives none.
	Default string
	// Vars holds the evaluated `vars` blocks with CLI overrides applied.
	Vars  map[string]cty.Value
	Tasks map[string]*Task
	// Files lists the source files in load order.
	Files []string
}

// Task is the format-agnostic representation of a `task` block.
type Task struct {
	Name        string
	Description string
	DependsOn   []string
	// Sequence entries run one after another once every prerequisite is done.
	Sequence []string
	Policy   Policy
	// Profile, when set, fixes run.profile for runs whose goal is this task.
	Profile string
	Actions []*Action
	Watches []*Watch
	// File is the Buildfile declaring the task.
	File string
}

// Action is one `action "<type>"` block. Arguments are evaluated lazily.
type Action struct {
	Type string
	// When is nil if the block has no `when` attribute.
	When      hcl.Expression
	Arguments map[string]hcl.Expression
}

// Watch is a `watch` block attached to a task.
type Watch struct {
	// Owner is the declaring task.
	Owner    string
	Paths    []string
	Run      []string
	Debounce time.Duration
}

// DefaultDebounce applies when a watch block sets none.
const DefaultDebounce = 200 * time.Millisecond
