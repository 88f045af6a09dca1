package task

import (
	"errors"
	"fmt"
	"sort"

	"github.com/agext/levenshtein"
)

// ErrUnknownTask is the sentinel matched by errors.Is for UnknownTaskError.
var ErrUnknownTask = errors.New("unknown task")

// UnknownTaskError reports a task name that is not in the table.
type UnknownTaskError struct {
	Name string
	// Referrer is the task whose depends_on, sequence or watch names Name.
	// Empty when the name came from the command line.
	Referrer string
	// Suggestion is the closest known name, if any is close enough.
	Suggestion string
}

func (e *UnknownTaskError) Error() string {
	msg := fmt.Sprintf("unknown task %q", e.Name)
	if e.Referrer != "" {
		msg += fmt.Sprintf(" (referenced by %q)", e.Referrer)
	}
	if e.Suggestion != "" {
		msg += fmt.Sprintf("; did you mean %q?", e.Suggestion)
	}
	return msg
}

func (e *UnknownTaskError) Unwrap() error { return ErrUnknownTask }

// suggest returns the known name closest to name, or "" when nothing is
// within roughly a third of its length.
func suggest(name string, known []string) string {
	sorted := append([]string(nil), known...)
	sort.Strings(sorted)

	best, bestDist := "", len(name)/3+2
	for _, k := range sorted {
		if d := levenshtein.Distance(name, k, nil); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best
}
