package client

import (
	"errors"
	"fmt"
)

var (
	// ErrChannelFailure is matched by every ChannelError.
	ErrChannelFailure = errors.New("Command channel failed")

	ErrCommandInFlight = errors.New("A command is already in flight on this channel")
)

// ChannelError is a fatal transport failure while sending a command or
// reading its reply. The session can't be used afterwards: the reply of an
// interrupted command could still arrive and be mistaken for the reply to
// the next one.
type ChannelError struct {
	// Op is "write" or "read"
	Op      string
	Command string
	Err     error
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("%s: %s '%s': %s", ErrChannelFailure.Error(), e.Op, e.Command, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

func (e *ChannelError) Is(target error) bool {
	return target == ErrChannelFailure
}
