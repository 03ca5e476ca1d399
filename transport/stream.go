package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"time"
)

// aLongTimeAgo is a deadline that has always passed, setting it interrupts
// a blocked read.
var aLongTimeAgo = time.Unix(1, 0)

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Stream is a blocking line transport over a reader and a writer, for
// processes that handle a single session, e.g. over stdin and stdout.
//
// Every line written is flushed before WriteLine returns. When the context
// has a deadline and the underlying reader or writer supports deadlines
// (net.Conn, pipes opened as *os.File) it is applied to the call, and
// cancelling the context interrupts a blocked read.
type Stream struct {
	r *bufio.Reader
	w *bufio.Writer

	rd readDeadliner
	wd writeDeadliner

	maxLineLength int
}

func NewStream(r io.Reader, w io.Writer) *Stream {
	s := &Stream{
		r:             bufio.NewReader(r),
		w:             bufio.NewWriter(w),
		maxLineLength: DefaultMaxLineLength,
	}

	s.rd, _ = r.(readDeadliner)
	s.wd, _ = w.(writeDeadliner)

	return s
}

// NewStdio returns a Stream over the process' stdin and stdout.
func NewStdio() *Stream {
	return NewStream(os.Stdin, os.Stdout)
}

// ReadLine blocks until a full line is available and returns it without its
// terminator.
func (s *Stream) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if s.rd != nil {
		// Always set, so a deadline left over from a cancelled read is cleared
		deadline, _ := ctx.Deadline()
		if err := s.rd.SetReadDeadline(deadline); err == nil {
			stop := context.AfterFunc(ctx, func() {
				s.rd.SetReadDeadline(aLongTimeAgo)
			})
			defer stop()
		}
	}

	var line []byte

	for {
		chunk, more, err := s.r.ReadLine()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return "", ctxErr
				}
				return "", context.DeadlineExceeded
			}

			return "", err
		}

		// Avoid the copy if the first call produced a full line.
		if line == nil && !more {
			return string(chunk), nil
		}

		line = append(line, chunk...)

		if len(line) > s.maxLineLength {
			return "", ErrLineTooLong
		}

		if !more {
			break
		}
	}

	return string(line), nil
}

// WriteLine writes line plus a terminator and flushes it.
func (s *Stream) WriteLine(ctx context.Context, line string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok && s.wd != nil {
		if err := s.wd.SetWriteDeadline(deadline); err == nil {
			defer s.wd.SetWriteDeadline(time.Time{})
		}
	}

	if _, err := s.w.WriteString(line); err != nil {
		return err
	}

	if err := s.w.WriteByte('\n'); err != nil {
		return err
	}

	return s.w.Flush()
}
