package manuscript

import (
	"context"

	"github.com/google/uuid"
)

// Task is one in-flight submission. It can only be cancelled through the
// context it was started with, which a Controller ties to its own lifetime.
type Task struct {
	ID         string
	Generation uint64

	done chan struct{}
}

func newTask(generation uint64) *Task {
	return &Task{
		ID:         uuid.NewString(),
		Generation: generation,
		done:       make(chan struct{}),
	}
}

// start runs fn in a goroutine under a child of parent.
func (t *Task) start(parent context.Context, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		defer close(t.done)
		defer cancel()
		fn(ctx)
	}()
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
