//go:build linux

package transport

import (
	"bytes"
	"fmt"
	"io"
	"syscall"

	"go.uber.org/zap"

	"github.com/luma/agi/protocol"
)

type readRequest struct {
	onLine  func(line string)
	onError func(err error)
}

type writeRequest struct {
	// end is the byte offset, in everything ever queued, that completes this write
	end    uint64
	onDone func(err error)
}

// Conn is a non-blocking line connection owned by a Loop. Completion is
// signalled through callbacks, which always run later on the loop
// goroutine, never inside the call that registered them.
type Conn struct {
	loop *Loop
	fd   int

	registered bool
	events     uint32

	rbuf    []byte
	scratch []byte
	reader  *readRequest

	// paused stops reads from the socket while a complete line waits for
	// a reader
	paused bool

	wbuf    []byte
	queued  uint64
	flushed uint64
	writers []writeRequest

	// err is sticky, once set the fd has been closed
	err error

	log *zap.Logger
}

func newConn(loop *Loop, fd int) *Conn {
	return &Conn{
		loop:    loop,
		fd:      fd,
		scratch: make([]byte, defaultReadChunk),
		log:     loop.log.Named("conn").With(zap.Int("fd", fd)),
	}
}

// ReadLine registers a single read. onLine receives the next line without
// its terminator, onError is called instead if the connection fails first.
// Only one read may be pending at a time, a second one fails with
// ErrReadPending.
func (c *Conn) ReadLine(onLine func(line string), onError func(err error)) {
	if c.reader != nil {
		c.loop.later(func() { onError(ErrReadPending) })
		return
	}

	c.reader = &readRequest{onLine: onLine, onError: onError}
	c.deliver()
	c.updateInterest()
}

// WriteLine queues line plus a terminator and starts writing it straight
// away. onDone is called once every byte has been handed to the kernel, or
// with the error that prevented it.
func (c *Conn) WriteLine(line string, onDone func(err error)) {
	if c.err != nil {
		err := c.err
		c.loop.later(func() { onDone(err) })
		return
	}

	c.wbuf = append(c.wbuf, line...)
	c.wbuf = append(c.wbuf, protocol.Terminal...)
	c.queued += uint64(len(line) + len(protocol.Terminal))
	c.writers = append(c.writers, writeRequest{end: c.queued, onDone: onDone})

	c.flush()
}

// Close closes the connection, pending callbacks fail with ErrConnClosed.
func (c *Conn) Close() error {
	c.fail(ErrConnClosed)
	return nil
}

// Err returns the error that closed the connection, if any.
func (c *Conn) Err() error {
	return c.err
}

func (c *Conn) handle(events uint32) {
	// Hangups are reported even while paused, the peer can't send more
	// after one so the rest is drained until the read fails
	hangup := events&(syscall.EPOLLHUP|syscall.EPOLLERR) != 0
	if hangup || (!c.paused && events&(syscall.EPOLLIN|syscall.EPOLLRDHUP) != 0) {
		c.readable()
	}

	if c.err == nil && len(c.wbuf) > 0 && events&syscall.EPOLLOUT != 0 {
		c.flush()
	}
}

func (c *Conn) readable() {
	n, err := syscall.Read(c.fd, c.scratch)
	if err != nil {
		if err == syscall.EAGAIN || err == syscall.EINTR {
			return
		}

		c.fail(err)
		return
	}

	if n == 0 {
		c.fail(fmt.Errorf("%w: %w", ErrConnClosed, io.EOF))
		return
	}

	c.rbuf = append(c.rbuf, c.scratch[:n]...)

	// Only the unterminated tail can still grow
	if tail := len(c.rbuf) - (bytes.LastIndexByte(c.rbuf, '\n') + 1); tail > c.loop.opts.MaxLineLength {
		c.fail(ErrLineTooLong)
		return
	}

	c.deliver()
	c.updateInterest()
}

// deliver completes the pending read with a buffered line, or with the
// connection error once no complete line is left.
func (c *Conn) deliver() {
	if c.reader == nil {
		return
	}

	r := c.reader

	if i := bytes.IndexByte(c.rbuf, '\n'); i >= 0 {
		line := protocol.TrimTerminator(string(c.rbuf[:i+1]))
		c.rbuf = c.rbuf[:copy(c.rbuf, c.rbuf[i+1:])]
		c.reader = nil

		c.loop.later(func() { r.onLine(line) })
		return
	}

	if c.err != nil {
		err := c.err
		c.reader = nil

		c.loop.later(func() { r.onError(err) })
	}
}

func (c *Conn) flush() {
	for len(c.wbuf) > 0 {
		n, err := syscall.Write(c.fd, c.wbuf)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}

			if err == syscall.EAGAIN {
				// Socket buffer is full, finish once it's writable again
				c.want(c.interest())
				c.completeWrites()
				return
			}

			c.fail(err)
			return
		}

		c.wbuf = c.wbuf[n:]
		c.flushed += uint64(n)
	}

	c.wbuf = nil
	c.want(c.interest())
	c.completeWrites()
}

func (c *Conn) completeWrites() {
	for len(c.writers) > 0 && c.writers[0].end <= c.flushed {
		w := c.writers[0]
		c.writers = c.writers[1:]

		c.loop.later(func() { w.onDone(nil) })
	}
}

func (c *Conn) updateInterest() {
	if c.err != nil {
		return
	}

	c.paused = c.reader == nil && bytes.IndexByte(c.rbuf, '\n') >= 0
	c.want(c.interest())
}

func (c *Conn) interest() uint32 {
	var events uint32
	if !c.paused {
		events |= EventRead
	}

	if len(c.wbuf) > 0 {
		events |= EventWrite
	}

	return events
}

func (c *Conn) want(events uint32) {
	if !c.registered || c.events == events {
		return
	}

	if err := c.loop.poller.Modify(c.fd, events); err != nil {
		c.fail(err)
		return
	}

	c.events = events
}

func (c *Conn) fail(err error) {
	if c.err != nil {
		return
	}

	c.err = err
	c.log.Debug("Connection closing", zap.Error(err))

	if c.registered {
		if rerr := c.loop.poller.Remove(c.fd); rerr != nil {
			c.log.Warn("Failed to remove connection from poller", zap.Error(rerr))
		}

		delete(c.loop.conns, c.fd)
		c.registered = false
	}

	if cerr := syscall.Close(c.fd); cerr != nil {
		c.log.Warn("Connection did not close cleanly", zap.Error(cerr))
	}

	writers := c.writers
	c.writers = nil
	c.wbuf = nil

	for _, w := range writers {
		w := w
		c.loop.later(func() { w.onDone(err) })
	}

	c.deliver()
}
