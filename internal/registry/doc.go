// Package registry provides the central "glue" for the action system.
//
// The Registry maps the action type names used in Buildfiles (e.g. "copy")
// to the compiled Go handlers and input structs that implement them. During
// startup the registry validates itself (handler signatures) and then every
// loaded Buildfile (action types and argument names), so a typo in a rarely
// run task fails at load time instead of mid-build.
package registry
