//go:build linux

package transport

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TaskState int

const (
	TaskNew TaskState = iota
	TaskRunning
	TaskAwaiting
	TaskDone
)

func (s TaskState) String() string {
	switch s {
	case TaskNew:
		return "new"
	case TaskRunning:
		return "running"
	case TaskAwaiting:
		return "awaiting"
	case TaskDone:
		return "done"
	default:
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
}

// Task is a cooperative unit of work on a Loop, typically one session.
//
// A task runs on its own goroutine but only while the loop has handed it
// control, so from the loop's point of view it is a continuation that gets
// parked in Await and resumed by a completion callback.
type Task struct {
	ID string

	loop *Loop
	fn   TaskFunc
	log  *zap.Logger

	wake  chan struct{}
	state TaskState

	// gen identifies the current Await so late settles of earlier ones are
	// ignored
	gen     uint64
	settled bool
	value   interface{}
	err     error

	done   chan struct{}
	result error
}

func newTask(loop *Loop, fn TaskFunc) *Task {
	id := uuid.NewString()

	return &Task{
		ID:   id,
		loop: loop,
		fn:   fn,
		log:  loop.log.Named("task").With(zap.String("task", id)),
		wake: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Done is closed when the task has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns what the task returned. Only valid once Done is closed.
func (t *Task) Err() error {
	return t.result
}

// Wait blocks until the task has returned, or ctx is done. It must not be
// called from a task on the same loop.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.result
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Task) run(ctx context.Context) {
	<-t.wake

	err := t.call(ctx)
	t.finish(err)

	t.loop.yield <- struct{}{}
}

func (t *Task) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("Task panicked: %v", r)
			t.log.Error("Task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	return t.fn(ctx, t)
}

func (t *Task) finish(err error) {
	t.state = TaskDone
	t.result = err
	close(t.done)
}

// await parks the task until settle is called, which start arranges for.
// It must be called from the task's own goroutine while it is running.
func (t *Task) await(ctx context.Context, start func(settle func(interface{}, error))) (interface{}, error) {
	l := t.loop

	if l.closing {
		return nil, &SuspensionError{Err: ErrLoopClosed}
	}

	if err := ctx.Err(); err != nil {
		return nil, &SuspensionError{Err: err}
	}

	t.gen++
	gen := t.gen
	t.settled = false
	t.value, t.err = nil, nil

	settle := func(value interface{}, err error) {
		if t.gen != gen || t.settled || t.state == TaskDone {
			return
		}

		t.settled = true
		t.value = value
		if err != nil {
			t.err = &SuspensionError{Err: err}
		}

		l.schedule(t)
	}

	// Only registered once start returns, a panic in start must not leave
	// the task in awaiting
	start(settle)

	t.state = TaskAwaiting
	l.awaiting[t] = settle

	stop := context.AfterFunc(ctx, func() {
		l.Post(func() { settle(nil, ctx.Err()) })
	})

	// Hand control back to the loop until settle has run and the loop
	// resumes us
	l.yield <- struct{}{}
	<-t.wake

	stop()
	delete(l.awaiting, t)
	t.state = TaskRunning

	return t.value, t.err
}

// Await suspends the calling task until resolve or reject is called, and
// returns the value or error they were given.
//
// start runs before the task parks, it should kick off the asynchronous
// operation and arrange for exactly one of resolve or reject to be called
// from a completion callback. Any further calls are ignored. If ctx ends
// first the task resumes with ctx's error instead. Every failure is
// returned as a *SuspensionError wrapping the cause.
//
// A task has at most one Await outstanding, since it is parked for its
// whole duration.
func Await[T any](ctx context.Context, t *Task, start func(resolve func(T), reject func(error))) (T, error) {
	var zero T

	value, err := t.await(ctx, func(settle func(interface{}, error)) {
		start(
			func(v T) { settle(v, nil) },
			func(err error) { settle(nil, err) },
		)
	})
	if err != nil {
		return zero, err
	}

	v, _ := value.(T)
	return v, nil
}
