// Package config loads configuration files into a validated definition set:
// variables, widget templates and window declarations.
//
// The Config model is the single source of truth for the engine: loading is
// all-or-nothing, so a Config that comes back without error is internally
// consistent (no unknown references, no duplicate definitions, no gate
// cycles) and safe to reconcile against.
package config
