package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedHeader is returned when the line source ends, or fails,
	// before the blank line terminating the header block.
	ErrMalformedHeader = errors.New("Header block is malformed, the session ended before the terminating blank line")

	// ErrUnparsedResponse is returned by Response.ErrorOrNil for reply lines
	// that don't match `<code> result=<n>`.
	ErrUnparsedResponse = errors.New("Response could not be parsed")

	// ErrInvalidArguments is returned when a well-known command is given the
	// wrong number of arguments.
	ErrInvalidArguments = errors.New("Invalid number of arguments for command")

	// ErrHeaderPopulated is returned when decoding JSON into a Header that
	// already holds variables.
	ErrHeaderPopulated = errors.New("Header already holds variables")
)

// ResultError describes a parsed response whose status code is not
// CodeSuccess.
type ResultError struct {
	Code int
	Raw  string
}

func (e *ResultError) Error() string {
	return fmt.Sprintf("Command failed with code %d: '%s'", e.Code, e.Raw)
}
