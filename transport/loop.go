//go:build linux

package transport

import (
	"context"
	"io"
	"runtime"
	"sync"
	"syscall"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// TaskFunc is the body of a task. ctx is cancelled when the loop shuts down.
type TaskFunc func(ctx context.Context, t *Task) error

// Loop multiplexes many connections and tasks on a single goroutine, locked
// to its OS thread.
//
// Tasks are cooperative: the loop hands control to one task at a time and
// waits until it parks in Await or returns. Completion callbacks and tasks
// therefore never run concurrently with each other or with the loop, and
// per-connection state needs no locking. The flip side is that a task
// which blocks on anything other than Await stalls every other session.
//
// Post, Go, Attach and AttachFD are safe to call from any goroutine. Conn
// methods must only be called from a task or a completion callback.
type Loop struct {
	poller *Poller
	opts   Options
	log    *zap.Logger

	// mu guards posted and stopped, the only state shared with other goroutines
	mu      sync.Mutex
	posted  []func()
	stopped bool

	ctx      context.Context
	conns    map[int]*Conn
	deferred []func()
	runq     []*Task
	awaiting map[*Task]func(interface{}, error)
	live     int
	closing  bool

	// yield is signalled by the running task when it parks or finishes
	yield chan struct{}

	done chan struct{}
}

func NewLoop(options Options) (*Loop, error) {
	options = options.withDefaults()

	poller, err := MakePoller()
	if err != nil {
		return nil, err
	}

	return &Loop{
		poller:   poller,
		opts:     options,
		log:      options.Log,
		ctx:      context.Background(),
		conns:    make(map[int]*Conn),
		awaiting: make(map[*Task]func(interface{}, error)),
		yield:    make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Run drives the loop until ctx is done. It then fails every connection,
// resumes every parked task with ErrLoopClosed, waits for all tasks to
// return and releases the poller.
func (l *Loop) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.ctx = ctx

	stop := context.AfterFunc(ctx, l.wake)
	defer stop()

	log := l.log.Named("run")
	log.Info("Event loop running")

	events := make([]syscall.EpollEvent, l.opts.EventBuffer)

	for ctx.Err() == nil {
		l.step()

		timeout := -1
		if l.hasWork() {
			timeout = 0
		}

		ready, err := l.poller.Wait(events, timeout)
		if err != nil {
			log.Error("Poll failed, shutting down", zap.Error(err))
			return multierr.Append(err, l.shutdown())
		}

		for _, ev := range ready {
			if conn, ok := l.conns[int(ev.Fd)]; ok {
				conn.handle(ev.Events)
			}
		}
	}

	log.Info("Context cancelled, shutting down")
	return l.shutdown()
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn to run on the loop goroutine. It returns false if the loop
// has already stopped, in which case fn will never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return false
	}

	l.posted = append(l.posted, fn)

	if err := l.poller.Wake(); err != nil {
		l.log.Warn("Failed to wake event loop", zap.Error(err))
	}

	return true
}

// Go starts fn as a new task on the loop.
func (l *Loop) Go(fn TaskFunc) *Task {
	t := newTask(l, fn)

	if !l.Post(func() { l.spawn(t) }) {
		t.finish(ErrLoopClosed)
	}

	return t
}

// AttachFD hands a connected socket to the loop, which takes ownership of
// it and switches it to non-blocking mode.
func (l *Loop) AttachFD(fd int) (*Conn, error) {
	if err := syscall.SetNonblock(fd, true); err != nil {
		return nil, err
	}

	c := newConn(l, fd)

	if !l.Post(func() { l.register(c) }) {
		syscall.Close(fd)
		return nil, ErrLoopClosed
	}

	return c, nil
}

// Attach duplicates the descriptor behind sc (a *net.TCPConn, *net.UnixConn,
// *os.File...) into the loop and closes sc.
func (l *Loop) Attach(sc syscall.Conn) (*Conn, error) {
	raw, err := sc.SyscallConn()
	if err != nil {
		return nil, err
	}

	var (
		fd     int
		dupErr error
	)

	if err := raw.Control(func(rawFd uintptr) {
		fd, dupErr = syscall.Dup(int(rawFd))
	}); err != nil {
		return nil, err
	}

	if dupErr != nil {
		return nil, dupErr
	}

	syscall.CloseOnExec(fd)

	if closer, ok := sc.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			l.log.Warn("Failed to close attached connection", zap.Error(err))
		}
	}

	return l.AttachFD(fd)
}

func (l *Loop) wake() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.stopped {
		l.poller.Wake()
	}
}

func (l *Loop) hasWork() bool {
	if len(l.deferred) > 0 || len(l.runq) > 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.posted) > 0
}

func (l *Loop) takePosted() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	posted := l.posted
	l.posted = nil
	return posted
}

// step runs one round of posted functions, deferred callbacks and runnable
// tasks. Work queued during the round is left for the next one so polling
// isn't starved.
func (l *Loop) step() {
	for _, fn := range l.takePosted() {
		fn()
	}

	deferred := l.deferred
	l.deferred = nil
	for _, fn := range deferred {
		fn()
	}

	runq := l.runq
	l.runq = nil
	for _, t := range runq {
		l.resume(t)
	}
}

// later queues a completion callback, callbacks never run inside the call
// that registered them.
func (l *Loop) later(fn func()) {
	l.deferred = append(l.deferred, fn)
}

func (l *Loop) schedule(t *Task) {
	l.runq = append(l.runq, t)
}

func (l *Loop) spawn(t *Task) {
	if l.closing {
		t.finish(ErrLoopClosed)
		return
	}

	l.live++
	l.schedule(t)
}

// resume hands control to t and blocks until it parks or finishes.
func (l *Loop) resume(t *Task) {
	switch t.state {
	case TaskDone:
		return

	case TaskNew:
		t.state = TaskRunning
		go t.run(l.ctx)
	}

	t.wake <- struct{}{}
	<-l.yield

	if t.state == TaskDone {
		l.live--
	}
}

func (l *Loop) register(c *Conn) {
	if c.err != nil {
		// Closed before it was ever registered
		return
	}

	if l.closing {
		c.fail(ErrLoopClosed)
		return
	}

	events := c.interest()
	if err := l.poller.Add(c.fd, events); err != nil {
		c.fail(err)
		return
	}

	c.registered = true
	c.events = events
	l.conns[c.fd] = c
}

func (l *Loop) shutdown() error {
	log := l.log.Named("shutdown")
	l.closing = true

	log.Info("Draining tasks",
		zap.Int("tasks", l.live),
		zap.Int("conns", len(l.conns)))

	for l.live > 0 || l.hasWork() {
		for _, c := range l.conns {
			c.fail(ErrLoopClosed)
		}

		for _, settle := range l.awaiting {
			settle(nil, ErrLoopClosed)
		}

		l.step()
	}

	l.mu.Lock()
	l.stopped = true
	posted := l.posted
	l.posted = nil
	l.mu.Unlock()

	// Anything posted while we were draining, closing makes these fail fast
	for _, fn := range posted {
		fn()
	}

	for _, fn := range l.deferred {
		fn()
	}
	l.deferred = nil

	close(l.done)
	log.Info("Event loop stopped")

	return l.poller.Close()
}
