package client

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/luma/agi/protocol"
)

// Conn sends commands over a line transport and reads back one response per
// command.
//
// Send blocks (or, on a transport.TaskStream, parks the calling task) until
// the response arrives. Commands are never pipelined, a Send made while
// another is in flight fails with ErrCommandInFlight.
type Conn struct {
	rw protocol.LineReadWriter

	inFlight int32

	// broken is set by the first transport failure and returned by every
	// later call. Only accessed by the holder of inFlight.
	broken error

	trace bool
	log   *zap.Logger
}

func NewConn(rw protocol.LineReadWriter, options Options) *Conn {
	options = options.withDefaults()

	return &Conn{
		rw:    rw,
		trace: options.Trace,
		log:   options.Log,
	}
}

// Send writes the command and its arguments as one line and returns the
// parsed response. See protocol.FormatCommand for how arguments are
// written, name is normalised with protocol.ParseCommand.
//
// Replies that don't parse are not errors, check Response.Parsed. The
// returned error is either ErrCommandInFlight or a *ChannelError, which is
// fatal for the session.
func (c *Conn) Send(ctx context.Context, name string, args ...interface{}) (*protocol.Response, error) {
	return c.send(ctx, protocol.ParseCommand(name), args)
}

// Exec is Send for a known command, with its argument count checked before
// anything is written.
func (c *Conn) Exec(ctx context.Context, cmd protocol.Command, args ...interface{}) (*protocol.Response, error) {
	if err := cmd.Validate(args); err != nil {
		return nil, err
	}

	return c.send(ctx, cmd, args)
}

func (c *Conn) send(ctx context.Context, cmd protocol.Command, args []interface{}) (*protocol.Response, error) {
	if !atomic.CompareAndSwapInt32(&c.inFlight, 0, 1) {
		return nil, ErrCommandInFlight
	}
	defer atomic.StoreInt32(&c.inFlight, 0)

	if c.broken != nil {
		return nil, c.broken
	}

	line := protocol.FormatCommand(cmd, args...)

	if c.trace {
		c.log.Debug(">> "+line, zap.String("command", string(cmd)))
	}

	if err := c.rw.WriteLine(ctx, line); err != nil {
		return nil, c.fail("write", cmd, err)
	}

	raw, err := c.rw.ReadLine(ctx)
	if err != nil {
		return nil, c.fail("read", cmd, err)
	}

	if c.trace {
		c.log.Debug("<< "+raw, zap.String("command", string(cmd)))
	}

	return protocol.ParseResponse(raw), nil
}

func (c *Conn) fail(op string, cmd protocol.Command, err error) error {
	c.broken = &ChannelError{Op: op, Command: string(cmd), Err: err}

	c.log.Warn("Command channel failed",
		zap.String("op", op),
		zap.String("command", string(cmd)),
		zap.Error(err))

	return c.broken
}
