package mailroom

import (
	"context"
	"iter"

	"github.com/codewandler/mailroom-go/core/mailbox"
)

// Session is a handle on one mailbox, bound to the context it was opened
// in. It subscribes on open, so it sees every message sent after Open
// returned. Ending the context or calling Close ends the subscription; the
// mailbox itself stays registered.
type Session[M any] struct {
	ctx context.Context
	box *mailbox.Mailbox[M]
	sub *mailbox.Subscription[M]
}

// Open resolves addr on room's registry and subscribes to it. Typed topic
// addresses get a JSON codec for M unless one was registered.
func Open[M any](ctx context.Context, room *Mailroom, addr mailbox.Address[M]) (*Session[M], error) {
	if room.closed.Load() {
		return nil, ErrClosed
	}
	if addr.Kind() == KindDecodedInbox || addr.Kind() == KindEncodedOutbox {
		if err := ensureCodec[M](room); err != nil {
			return nil, err
		}
	}
	box, err := mailbox.GetMailbox(ctx, room.reg, addr)
	if err != nil {
		return nil, err
	}
	return &Session[M]{
		ctx: ctx,
		box: box,
		sub: box.Subscribe(ctx),
	}, nil
}

func (s *Session[M]) Address() mailbox.Address[M] { return s.box.Address() }

// Receive suspends until the next message arrives.
func (s *Session[M]) Receive() (M, error) {
	env, err := s.sub.Receive(s.ctx)
	return env.Message, err
}

// Messages is a lazy, unbounded view of the session's stream. Messages
// consumed by one iteration are gone; the sequence cannot be restarted.
func (s *Session[M]) Messages() iter.Seq[M] {
	return func(yield func(M) bool) {
		for env := range s.sub.All(s.ctx) {
			if !yield(env.Message) {
				return
			}
		}
	}
}

// Send delivers msg to the mailbox, including this session's own
// subscription.
func (s *Session[M]) Send(msg M) error {
	return s.box.Send(s.ctx, msg)
}

// Err reports why the session ended, or nil while it is open.
func (s *Session[M]) Err() error { return s.sub.Err() }

func (s *Session[M]) Close() { s.sub.Close() }

// Subscribe opens a session on the decoded inbox of topic. Remote members
// learn about the interest and start forwarding.
func Subscribe[E any](ctx context.Context, room *Mailroom, topic string) (*Session[E], error) {
	return Open(ctx, room, DecodedInbox[E](topic))
}

// Unsubscribe evicts the decoded inbox of topic, which ends all of its
// sessions and withdraws the interest.
func Unsubscribe[E any](ctx context.Context, room *Mailroom, topic string) error {
	return room.reg.Evict(ctx, DecodedInbox[E](topic))
}

// Receive waits for the next message on topic.
func Receive[E any](ctx context.Context, room *Mailroom, topic string) (E, error) {
	s, err := Subscribe[E](ctx, room, topic)
	if err != nil {
		var zero E
		return zero, err
	}
	defer s.Close()
	return s.Receive()
}

// Send publishes msg on topic. It is encoded with the codec of E and
// routed to the members interested in topic.
func Send[E any](ctx context.Context, room *Mailroom, topic string, msg E) error {
	if err := ensureCodec[E](room); err != nil {
		return err
	}
	box, err := mailbox.GetMailbox(ctx, room.reg, EncodedOutbox[E](topic))
	if err != nil {
		return err
	}
	return box.Send(ctx, msg)
}
