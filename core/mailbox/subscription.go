package mailbox

import (
	"context"
	"iter"
	"sync"
)

// Subscription is an independent cursor over the envelopes sent to a
// mailbox (or merged by FanIn) after it was opened. Each subscription has
// its own bounded queue and overflow policy; see Overflow for what happens
// when it fills up.
type Subscription[M any] struct {
	ch     chan Envelope[M]
	done   chan struct{}
	policy Overflow

	once   sync.Once
	err    error
	detach func()

	mu   sync.Mutex
	stop func() bool
}

func newSubscription[M any](capacity int, policy Overflow, detach func()) *Subscription[M] {
	return &Subscription[M]{
		ch:     make(chan Envelope[M], capacity),
		done:   make(chan struct{}),
		policy: policy,
		detach: detach,
	}
}

// bind closes the subscription with ctx's error once ctx is done. ctx may
// already be done, in which case the subscription closes right away.
func (s *Subscription[M]) bind(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() {
		s.closeWith(ctx.Err())
	})

	s.mu.Lock()
	s.stop = stop
	s.mu.Unlock()

	if s.closed() {
		stop()
	}
}

// Policy returns the overflow policy applied to this subscription.
func (s *Subscription[M]) Policy() Overflow { return s.policy }

// C exposes the queue for use in select statements. It is never closed;
// pair it with Done.
func (s *Subscription[M]) C() <-chan Envelope[M] { return s.ch }

// Done is closed when the subscription ended.
func (s *Subscription[M]) Done() <-chan struct{} { return s.done }

// Err reports why the subscription ended: ErrSubscriptionClosed after
// Close, ErrMailboxClosed after eviction, ErrSubscriberOverloaded after a
// disconnect, or the context error of the scope it was opened in.
func (s *Subscription[M]) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Receive blocks until the next envelope arrives, the subscription ends or
// ctx is done.
func (s *Subscription[M]) Receive(ctx context.Context) (Envelope[M], error) {
	var zero Envelope[M]
	select {
	case <-s.done:
		return zero, s.err
	default:
	}
	select {
	case env := <-s.ch:
		return env, nil
	case <-s.done:
		return zero, s.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// All returns a lazy, unbounded view of the subscription. Envelopes consumed
// by one iteration are gone, so the sequence cannot be restarted.
func (s *Subscription[M]) All(ctx context.Context) iter.Seq[Envelope[M]] {
	return func(yield func(Envelope[M]) bool) {
		for {
			env, err := s.Receive(ctx)
			if err != nil {
				return
			}
			if !yield(env) {
				return
			}
		}
	}
}

// Close ends the subscription. It does not affect the mailbox or its other
// subscribers.
func (s *Subscription[M]) Close() {
	s.closeWith(ErrSubscriptionClosed)
}

func (s *Subscription[M]) closeWith(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)

		s.mu.Lock()
		stop := s.stop
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if s.detach != nil {
			s.detach()
		}
	})
}

func (s *Subscription[M]) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// offer enqueues env according to the subscription's policy. It only
// fails when ctx is done while blocking.
func (s *Subscription[M]) offer(ctx context.Context, env Envelope[M], m Metrics, kind string) error {
	if s.closed() {
		return nil
	}

	switch s.policy {
	case OverflowDropOldest:
		for {
			select {
			case s.ch <- env:
				return nil
			case <-s.done:
				return nil
			default:
			}
			select {
			case <-s.ch:
				m.MessageDropped(kind)
			default:
			}
		}

	case OverflowDisconnect:
		select {
		case s.ch <- env:
		case <-s.done:
		default:
			m.SubscriberDisconnected(kind)
			s.closeWith(ErrSubscriberOverloaded)
		}
		return nil

	default:
		select {
		case s.ch <- env:
			return nil
		case <-s.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
