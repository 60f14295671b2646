package fsync

import (
	"errors"
	"fmt"
)

// FilesystemError reports a failed filesystem operation. It is fatal to the
// enclosing task.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

func fsErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	return &FilesystemError{Op: op, Path: path, Err: err}
}

var errRefuseDir = errors.New("refusing to clean empty or root directory")
