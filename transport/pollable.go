//go:build unix

package transport

import (
	"os"
	"syscall"
)

// Pollable returns a duplicate of f in non-blocking mode, so reads through
// a Stream honour deadlines and context cancellation. Pipes handed to a
// process, like the stdin of an AGI script, are blocking otherwise and a
// read on them can't be interrupted.
//
// The descriptions are shared, f must not be read from afterwards.
// Terminals are better left alone, the mode outlives the process.
func Pollable(f *os.File) (*os.File, error) {
	fd, err := syscall.Dup(int(f.Fd()))
	if err != nil {
		return nil, err
	}

	syscall.CloseOnExec(fd)

	if err := syscall.SetNonblock(fd, true); err != nil {
		syscall.Close(fd)
		return nil, err
	}

	return os.NewFile(uintptr(fd), f.Name()), nil
}
