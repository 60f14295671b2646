package devserver

import (
	"errors"
	"fmt"
	"syscall"
)

// PortInUseError is returned by Start when the configured port is already
// bound by another process.
type PortInUseError struct {
	Port int
	Err  error
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %d is already in use", e.Port)
}

func (e *PortInUseError) Unwrap() error { return e.Err }

func isAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}
