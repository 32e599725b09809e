package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Overflow is the policy applied when a subscriber's queue is full.
type Overflow int

const (
	// OverflowBlock suspends the sender until the subscriber has room, the
	// subscription ends, or the sender's context is done. Slow consumers
	// therefore show up as publish latency.
	OverflowBlock Overflow = iota
	// OverflowDropOldest discards the oldest queued envelope of the slow
	// subscriber. Senders never wait.
	OverflowDropOldest
	// OverflowDisconnect closes the slow subscription with
	// ErrSubscriberOverloaded. Senders never wait.
	OverflowDisconnect
)

func (o Overflow) String() string {
	switch o {
	case OverflowBlock:
		return "block"
	case OverflowDropOldest:
		return "drop-oldest"
	case OverflowDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("overflow(%d)", int(o))
	}
}

// ParseOverflow parses the names returned by Overflow.String.
func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return OverflowBlock, nil
	case "drop-oldest", "drop_oldest":
		return OverflowDropOldest, nil
	case "disconnect":
		return OverflowDisconnect, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy %q", s)
	}
}

// DefaultCapacity is the per-subscriber queue size used when none is set.
const DefaultCapacity = 64

type boxConfig struct {
	capacity int
	overflow Overflow
	log      *slog.Logger
	metrics  Metrics
}

// AnyMailbox is the type-erased view of a Mailbox handed to observers.
// Use As to recover the typed mailbox.
type AnyMailbox interface {
	Addr() AnyAddress
	Done() <-chan struct{}
	Subscribers() int

	close()
	markReady()
	waitReady(ctx context.Context) error
}

// Mailbox is the broadcast stream bound to one address. Every Send is
// delivered to each subscription open at that moment, in send order per
// subscriber. There is no history: late subscribers see only later sends.
type Mailbox[M any] struct {
	addr Address[M]
	cfg  boxConfig
	kind string

	mu     sync.RWMutex
	subs   map[*Subscription[M]]struct{}
	closed bool

	done  chan struct{}
	ready chan struct{}
}

func newMailbox[M any](addr Address[M], cfg boxConfig) *Mailbox[M] {
	return &Mailbox[M]{
		addr:  addr,
		cfg:   cfg,
		kind:  addr.Kind().String(),
		subs:  make(map[*Subscription[M]]struct{}),
		done:  make(chan struct{}),
		ready: make(chan struct{}),
	}
}

// As returns the typed mailbox behind box.
func As[M any](box AnyMailbox) (*Mailbox[M], bool) {
	mb, ok := box.(*Mailbox[M])
	return mb, ok
}

func (m *Mailbox[M]) Address() Address[M] { return m.addr }
func (m *Mailbox[M]) Addr() AnyAddress    { return m.addr }

// Done is closed when the mailbox is evicted.
func (m *Mailbox[M]) Done() <-chan struct{} { return m.done }

// Subscribers returns the number of open subscriptions.
func (m *Mailbox[M]) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// Send delivers msg to all current subscribers. With OverflowBlock it may
// suspend; it returns ctx's error if ctx ends first, and ErrMailboxClosed
// if the mailbox was evicted.
func (m *Mailbox[M]) Send(ctx context.Context, msg M) error {
	defer m.cfg.metrics.SendDuration(m.kind).ObserveDuration()

	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrMailboxClosed
	}
	subs := make([]*Subscription[M], 0, len(m.subs))
	for s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.RUnlock()

	env := Envelope[M]{Address: m.addr, Message: msg}
	for _, s := range subs {
		if err := s.offer(ctx, env, m.cfg.metrics, m.kind); err != nil {
			return fmt.Errorf("send to %s: %w", m.addr, err)
		}
	}

	m.cfg.metrics.MessageSent(m.kind)
	return nil
}

// Subscribe opens a cursor over all envelopes sent from now on, using the
// registry's overflow policy. The subscription ends when ctx is done, on
// Close, or when the mailbox is evicted.
func (m *Mailbox[M]) Subscribe(ctx context.Context) *Subscription[M] {
	return m.SubscribeWith(ctx, m.cfg.overflow)
}

// SubscribeWith is Subscribe with an explicit overflow policy. Forwarding
// tasks that must not lose messages or die under load subscribe with
// OverflowBlock.
func (m *Mailbox[M]) SubscribeWith(ctx context.Context, policy Overflow) *Subscription[M] {
	var s *Subscription[M]
	s = newSubscription[M](m.cfg.capacity, policy, func() { m.detach(s) })

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.closeWith(ErrMailboxClosed)
		return s
	}
	m.subs[s] = struct{}{}
	m.mu.Unlock()

	s.bind(ctx)
	return s
}

func (m *Mailbox[M]) detach(s *Subscription[M]) {
	m.mu.Lock()
	delete(m.subs, s)
	m.mu.Unlock()
}

func (m *Mailbox[M]) close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	subs := m.subs
	m.subs = make(map[*Subscription[M]]struct{})
	m.mu.Unlock()

	close(m.done)
	for s := range subs {
		s.closeWith(ErrMailboxClosed)
	}
}

func (m *Mailbox[M]) markReady() { close(m.ready) }

func (m *Mailbox[M]) waitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ AnyMailbox = (*Mailbox[any])(nil)
