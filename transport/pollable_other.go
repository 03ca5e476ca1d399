//go:build !unix

package transport

import (
	"errors"
	"os"
)

func Pollable(f *os.File) (*os.File, error) {
	return nil, errors.New("Non-blocking files are not supported on this platform")
}
