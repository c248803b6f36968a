// Package graph tracks which bound expressions depend on which variables and
// re-evaluates exactly the affected set when variables change.
//
// Every subscription is one expression bound somewhere in the UI: a widget
// attribute, a poll gate, a for-loop source. The graph keeps an inverted
// index from variable name to subscriptions, plus the last value each
// subscription produced, so an update that evaluates to the same value stops
// at the graph instead of reaching the render surface.
//
// The graph is confined to the reactive core goroutine: producers hand
// variable updates to the core, which applies them to the store and then
// flushes the graph. No locking happens here.
package graph
