// Package task holds the task table: every task declared in the loaded
// Buildfiles, validated once at startup and read-only afterwards.
//
// The table rejects unknown prerequisites and dependency cycles when it is
// built, so the runner never has to handle them mid-run. It is also what
// `taskgrid list` and `taskgrid inspect` render.
package task
