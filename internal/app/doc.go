// Package app wires taskgrid together: it loads the Buildfiles, registers
// the built-in actions, validates both against each other and builds the
// executor. It also owns the long-lived parts of a process such as the
// health check server, the dev server and watch mode, decoupled from any
// specific entrypoint like a CLI.
package app
