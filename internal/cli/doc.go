// Package cli is responsible for parsing command-line arguments, validating
// user input, and handling process-level concerns like exit codes. It
// translates flags, TASKGRID_* environment variables and the .env file into
// the application's configuration and drives the app for each subcommand.
package cli
