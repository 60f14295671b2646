// Package watch turns source changes into rebuilds.
//
// A Watcher reports filesystem events below the project root, a Debouncer
// coalesces bursts of them into batches, and the Coordinator maps each batch
// to the bound tasks and runs them, one run at a time, reloading connected
// browsers on success.
package watch
