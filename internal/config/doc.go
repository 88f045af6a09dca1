// Package config defines the format-agnostic Buildfile model, the immutable
// per-run settings, and the Loader/Converter interfaces that bridge a concrete
// configuration format (HCL) to the task table and the action handlers.
//
// Nothing in this package evaluates expressions. Action arguments stay as
// hcl.Expression values until a run asks the Converter to decode them, so
// each run sees its own profile, mode and goal.
package config
