package transport

import (
	"errors"
	"fmt"
)

var (
	ErrConnClosed  = errors.New("Connection closed")
	ErrLoopClosed  = errors.New("Event loop closed")
	ErrReadPending = errors.New("A read is already pending on this connection")
	ErrLineTooLong = errors.New("Line exceeds the maximum line length")

	// ErrSuspensionFailure is matched by every SuspensionError.
	ErrSuspensionFailure = errors.New("Suspended task was resumed with a failure")
)

// SuspensionError is returned by Await when the task was resumed by a
// failure rather than a result.
type SuspensionError struct {
	Err error
}

func (e *SuspensionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSuspensionFailure.Error(), e.Err)
}

func (e *SuspensionError) Unwrap() error {
	return e.Err
}

func (e *SuspensionError) Is(target error) bool {
	return target == ErrSuspensionFailure
}
