package process

import (
	"context"
	"sync"
)

// FakeRunner records commands and answers them from a script. It is used by
// tests across packages.
type FakeRunner struct {
	mu    sync.Mutex
	calls []Command
	// Respond, when set, decides the outcome of each call.
	Respond func(cmd Command) (*Result, error)
}

// Run records cmd and returns the scripted outcome, or success.
func (f *FakeRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, cmd)
	respond := f.Respond
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if respond != nil {
		return respond(cmd)
	}
	return &Result{}, nil
}

// Calls returns a copy of the recorded commands.
func (f *FakeRunner) Calls() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}
