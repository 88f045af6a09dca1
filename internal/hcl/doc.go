// Package hcl reads Buildfiles. The Loader parses every file, translates the
// `vars` and `task` blocks into the config model and applies --var
// overrides; the Converter evaluates action arguments lazily against the
// vars, env and run objects and binds them to handler input structs.
package hcl
