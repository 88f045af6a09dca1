// Package process is the external-process capability used by actions that
// shell out (compilers, linters, test runners, git). Results are typed: a
// non-zero exit is an *ExitError carrying the tool's exit code, so a fatal
// task can hand that code back to the shell.
package process
