//go:build linux

package transport

import (
	"context"
)

// TaskStream gives a task a blocking view of a Conn: each call parks the
// task in Await until the connection's completion callback fires.
type TaskStream struct {
	task *Task
	conn *Conn
}

func NewTaskStream(t *Task, c *Conn) *TaskStream {
	return &TaskStream{task: t, conn: c}
}

func (s *TaskStream) ReadLine(ctx context.Context) (string, error) {
	return Await(ctx, s.task, func(resolve func(string), reject func(error)) {
		s.conn.ReadLine(resolve, reject)
	})
}

func (s *TaskStream) WriteLine(ctx context.Context, line string) error {
	_, err := Await(ctx, s.task, func(resolve func(struct{}), reject func(error)) {
		s.conn.WriteLine(line, func(err error) {
			if err != nil {
				reject(err)
				return
			}

			resolve(struct{}{})
		})
	})

	return err
}

func (s *TaskStream) Conn() *Conn {
	return s.conn
}
