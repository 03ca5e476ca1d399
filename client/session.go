package client

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/agi/protocol"
)

// ShutdownHook is notified when the owner of a session tears it down, e.g.
// because the remote end hung up.
type ShutdownHook interface {
	OnShutdown(ctx context.Context, reason error) error
}

type ShutdownFunc func(ctx context.Context, reason error) error

func (f ShutdownFunc) OnShutdown(ctx context.Context, reason error) error {
	return f(ctx, reason)
}

// Handler runs the logic of a single session.
type Handler func(ctx context.Context, s *Session) error

// Session is one connected AGI channel: the header sent when it started,
// plus the command channel.
type Session struct {
	*Conn

	ID string

	header *protocol.Header

	mu       sync.Mutex
	hooks    []ShutdownHook
	shutdown bool

	log *zap.Logger
}

// NewSession reads the header block from rw and returns a session ready for
// commands. The error wraps protocol.ErrMalformedHeader if rw failed before
// the header was complete.
func NewSession(ctx context.Context, rw protocol.LineReadWriter, options Options) (*Session, error) {
	options = options.withDefaults()

	id := uuid.NewString()
	log := options.Log.With(zap.String("session", id))

	header, err := protocol.ReadHeader(ctx, rw)
	if err != nil {
		log.Warn("Failed to read session header", zap.Error(err))
		return nil, err
	}

	log.Debug("Session started",
		zap.String("channel", header.Value("channel")),
		zap.String("uniqueid", header.Value("uniqueid")),
		zap.Int("variables", header.Len()))

	return &Session{
		Conn:   NewConn(rw, Options{Trace: options.Trace, Log: log}),
		ID:     id,
		header: header,
		log:    log,
	}, nil
}

func (s *Session) Header() *protocol.Header {
	return s.header
}

// Get returns a header variable, without its agi_ prefix.
func (s *Session) Get(key string) (string, bool) {
	return s.header.Get(key)
}

// OnShutdown registers a hook. Hooks run in reverse registration order. A
// hook registered after Shutdown has run is never called.
func (s *Session) OnShutdown(hook ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hooks = append(s.hooks, hook)
}

// Shutdown runs the registered hooks once, later calls do nothing. Hooks
// may run while a command is in flight, so they must not send commands.
func (s *Session) Shutdown(ctx context.Context, reason error) (err error) {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}

	s.shutdown = true
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	s.log.Debug("Session shutting down", zap.Error(reason), zap.Int("hooks", len(hooks)))

	for i := len(hooks) - 1; i >= 0; i-- {
		if herr := hooks[i].OnShutdown(ctx, reason); herr != nil {
			err = multierr.Append(err, herr)
		}
	}

	return err
}
