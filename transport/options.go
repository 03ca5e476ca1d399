package transport

import (
	"go.uber.org/zap"
)

const (
	DefaultMaxLineLength = 64 * 1024
	DefaultEventBuffer   = 128
	defaultReadChunk     = 4096
)

type Options struct {
	// MaxLineLength bounds how much a connection buffers while waiting for
	// a line terminator
	MaxLineLength int

	// EventBuffer is the number of readiness events fetched per poll
	EventBuffer int

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxLineLength < 1 {
		o.MaxLineLength = DefaultMaxLineLength
	}

	if o.EventBuffer < 1 {
		o.EventBuffer = DefaultEventBuffer
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
