// Package pipeline wires the concrete site build: the named tasks, the watch
// bindings and the process-wide objects (output tree, runner, dev server,
// live-reload hub, watch coordinator) that serve them.
package pipeline
