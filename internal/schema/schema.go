// Package schema holds the gohcl decode targets for Buildfiles. The structs
// mirror the file syntax one to one; translation into the config model lives
// in the hcl package.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// Vars is a `vars { ... }` block. Every attribute is a variable.
type Vars struct {
	Body hcl.Body `hcl:",remain"`
}

// Watch is a `watch` block inside a task.
type Watch struct {
	Paths    []string `hcl:"paths"`
	Run      []string `hcl:"run,optional"`
	Debounce string   `hcl:"debounce,optional"`
}

// Action is an `action "<type>"` block. Everything except `when` is an
// argument for the handler and is kept unevaluated in Body.
type Action struct {
	Type string         `hcl:"type,label"`
	When hcl.Expression `hcl:"when,optional"`
	Body hcl.Body       `hcl:",remain"`
}

// Task represents a `task "name"` block.
type Task struct {
	Name        string    `hcl:"name,label"`
	Description string    `hcl:"description,optional"`
	DependsOn   []string  `hcl:"depends_on,optional"`
	Sequence    []string  `hcl:"sequence,optional"`
	Policy      string    `hcl:"policy,optional"`
	Profile     string    `hcl:"profile,optional"`
	Actions     []*Action `hcl:"action,block"`
	Watches     []*Watch  `hcl:"watch,block"`
}

// File is the top-level structure of a single Buildfile.
type File struct {
	Default string  `hcl:"default,optional"`
	Vars    []*Vars `hcl:"vars,block"`
	Tasks   []*Task `hcl:"task,block"`
}
