// Package fsync materializes build inputs into the output tree.
//
// Every file it writes goes through a temp file and a rename in the same
// directory, so a reader never observes a half-written file. Output adds a
// reader/writer lock on top for the dev server.
package fsync
