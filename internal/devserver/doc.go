// Package devserver serves the output tree over HTTP during development and
// pushes live-reload and build-error messages to connected browser tabs.
package devserver
