package registry

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"

	"github.com/vk/taskgrid/internal/action"
)

// Module is the interface that all action modules must implement to be
// registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredAction holds the compiled Go parts of an action. Fn must have
// the signature func(context.Context, *action.Env, *Input) error where
// Input is InputType.
type RegisteredAction struct {
	NewInput  func() any
	InputType reflect.Type
	Fn        any
}

// Registry holds all the registered action handlers for a single
// application instance.
type Registry struct {
	ActionRegistry map[string]*RegisteredAction
}

// New creates and initializes a new Registry instance.
func New() *Registry {
	return &Registry{
		ActionRegistry: make(map[string]*RegisteredAction),
	}
}

// RegisterAction registers a Go handler for an action type.
func (r *Registry) RegisterAction(name string, handler *RegisteredAction) {
	if _, exists := r.ActionRegistry[name]; exists {
		panic(fmt.Sprintf("action handler with name '%s' already registered", name))
	}
	slog.Debug("Registering action handler.", "name", name)
	r.ActionRegistry[name] = handler
}

// Lookup returns the handler for an action type.
func (r *Registry) Lookup(name string) (*RegisteredAction, bool) {
	h, ok := r.ActionRegistry[name]
	return h, ok
}

// Types returns the registered action type names, sorted.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.ActionRegistry))
	for name := range r.ActionRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke calls the handler with a decoded input.
func (r *Registry) Invoke(ctx context.Context, handler *RegisteredAction, env *action.Env, input any) error {
	handlerFunc := reflect.ValueOf(handler.Fn)
	callArgs := []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(env)}
	if input == nil {
		callArgs = append(callArgs, reflect.Zero(handlerFunc.Type().In(2)))
	} else {
		callArgs = append(callArgs, reflect.ValueOf(input))
	}

	results := handlerFunc.Call(callArgs)
	if errResult := results[0].Interface(); errResult != nil {
		return errResult.(error)
	}
	return nil
}
