package actor

import (
	"context"
	"errors"
)

// ErrStopped is returned when an operation is submitted to a State whose
// owner goroutine has exited.
var ErrStopped = errors.New("actor: state owner stopped")

type (
	StateOp[T any] func(*T)

	// State owns a *T. All reads and writes are executed by a single
	// goroutine, which gives callers check-then-act atomicity for free.
	State[T any] struct {
		data  *T
		tasks chan func(*T)
		done  chan struct{}
	}
)

// NewState starts the owner goroutine. It exits when ctx is done.
func NewState[T any](ctx context.Context, data *T) *State[T] {
	s := &State[T]{
		data:  data,
		tasks: make(chan func(*T)),
		done:  make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Done is closed once the owner goroutine has exited.
func (s *State[T]) Done() <-chan struct{} { return s.done }

// Process applies ops in order and blocks until they have run.
func (s *State[T]) Process(ops ...StateOp[T]) error {
	_, err := Read(s, func(st *T) struct{} {
		for _, op := range ops {
			op(st)
		}
		return struct{}{}
	})
	return err
}

// Read runs op on the owner goroutine and returns its result.
func Read[T any, R any](s *State[T], op func(*T) R) (R, error) {
	out := make(chan R, 1)
	task := func(st *T) { out <- op(st) }

	var zero R
	select {
	case <-s.done:
		return zero, ErrStopped
	case s.tasks <- task:
	}

	select {
	case r := <-out:
		return r, nil
	case <-s.done:
		// the task may have run right before shutdown
		select {
		case r := <-out:
			return r, nil
		default:
			return zero, ErrStopped
		}
	}
}

// Final waits for the owner goroutine to exit and then applies op to the
// data directly. It is meant for teardown, after the owner's context was
// cancelled; calling it concurrently with other Final calls is not safe.
func (s *State[T]) Final(op StateOp[T]) {
	<-s.done
	op(s.data)
}

func (s *State[T]) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.tasks:
			t(s.data)
		}
	}
}
