//go:build linux

package client

import (
	"context"

	"go.uber.org/multierr"

	"github.com/luma/agi/transport"
)

// Serve runs a session on conn as a task on loop: it reads the header, calls
// handler, then runs the session's shutdown hooks and closes conn.
//
// Every command the handler sends parks only its own task, so a single
// loop can serve many sessions at once.
func Serve(loop *transport.Loop, conn *transport.Conn, handler Handler, options Options) *transport.Task {
	return loop.Go(func(ctx context.Context, t *transport.Task) error {
		defer conn.Close()

		s, err := NewSession(ctx, transport.NewTaskStream(t, conn), options)
		if err != nil {
			return err
		}

		err = handler(ctx, s)

		return multierr.Append(err, s.Shutdown(ctx, err))
	})
}
