package client

import (
	"go.uber.org/zap"
)

type Options struct {
	// Trace logs every command sent and response received at debug level
	Trace bool

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
