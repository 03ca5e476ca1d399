package protocol

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

var (
	// EmptyArg is written in place of absent or empty arguments.
	EmptyArg = `""`

	Terminal = "\n"
)

// LineReader reads a single line, without its terminator.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// LineWriter writes a single line and flushes it to the remote end before
// returning.
type LineWriter interface {
	WriteLine(ctx context.Context, line string) error
}

type LineReadWriter interface {
	LineReader
	LineWriter
}

// FormatCommand serialises a command and its arguments into a single line,
// without the terminator.
//
// nil, nil pointers and empty strings become EmptyArg. Everything else is
// written using its fmt string form, embedded spaces are not escaped.
func FormatCommand(cmd Command, args ...interface{}) string {
	var b strings.Builder
	b.WriteString(string(cmd))

	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(FormatArg(arg))
	}

	return b.String()
}

// FormatArg returns the wire form of a single argument.
func FormatArg(arg interface{}) string {
	var s string

	switch v := arg.(type) {
	case nil:
		return EmptyArg
	case string:
		s = v
	case *string:
		if v == nil {
			return EmptyArg
		}
		s = *v
	case fmt.Stringer:
		if isNilPointer(v) {
			return EmptyArg
		}
		s = v.String()
	default:
		if isNilPointer(v) {
			return EmptyArg
		}
		s = fmt.Sprint(v)
	}

	if s == "" {
		return EmptyArg
	}

	return s
}

// WriteCommand serialises the command and writes it as one line.
func WriteCommand(ctx context.Context, w LineWriter, cmd Command, args ...interface{}) error {
	return w.WriteLine(ctx, FormatCommand(cmd, args...))
}

func isNilPointer(v interface{}) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Ptr && rv.IsNil()
}
