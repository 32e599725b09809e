package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// memQueueSize is the number of frames buffered per listener.
const memQueueSize = 256

// MemoryTransport connects nodes living in the same process. Frames are
// marshalled like on a real wire and delivered by one goroutine per
// listener, so per-sender order is kept.
type MemoryTransport struct {
	mu  sync.RWMutex
	log *slog.Logger

	closed bool

	// member -> subID -> listener
	listeners map[string]map[string]*memListener

	seq uint64
}

func NewInMemoryTransport() *MemoryTransport {
	return &MemoryTransport{
		log:       slog.New(slog.DiscardHandler),
		listeners: make(map[string]map[string]*memListener),
	}
}

func (t *MemoryTransport) WithLog(log *slog.Logger) *MemoryTransport {
	t.log = log.With(slog.String("transport", "mem"))
	return t
}

func (t *MemoryTransport) Send(ctx context.Context, member string, f Frame) error {
	b, err := MarshalFrame(f)
	if err != nil {
		return err
	}

	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrTransportClosed
	}
	// copy so no lock is held while blocking on a queue
	subs := t.listeners[member]
	targets := make([]*memListener, 0, len(subs))
	for _, l := range subs {
		targets = append(targets, l)
	}
	t.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMember, member)
	}

	for _, l := range targets {
		select {
		case l.queue <- b:
		case <-l.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *MemoryTransport) Listen(ctx context.Context, member string, h FrameHandler) (Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.listeners[member] == nil {
		t.listeners[member] = make(map[string]*memListener)
	}

	subID := fmt.Sprintf("sub.%s.%d", member, atomic.AddUint64(&t.seq, 1))
	ctx, cancel := context.WithCancel(ctx)
	l := &memListener{
		t:      t,
		log:    t.log.With(slog.String("subscription", subID), slog.String("member", member)),
		member: member,
		subID:  subID,
		queue:  make(chan []byte, memQueueSize),
		done:   ctx.Done(),
		cancel: cancel,
	}
	t.listeners[member][subID] = l

	go l.run(ctx, h)
	context.AfterFunc(ctx, func() {
		_ = l.Unsubscribe()
	})

	t.log.Debug("listen", slog.String("member", member))
	return l, nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	var all []*memListener
	for _, subs := range t.listeners {
		for _, l := range subs {
			all = append(all, l)
		}
	}
	t.mu.Unlock()

	for _, l := range all {
		_ = l.Unsubscribe()
	}
	t.log.Debug("closed")
	return nil
}

type memListener struct {
	t      *MemoryTransport
	log    *slog.Logger
	member string
	subID  string
	queue  chan []byte
	done   <-chan struct{}
	cancel context.CancelFunc
	once   sync.Once
}

func (l *memListener) Unsubscribe() error {
	l.once.Do(func() {
		l.cancel()
		l.t.mu.Lock()
		defer l.t.mu.Unlock()
		if subs := l.t.listeners[l.member]; subs != nil {
			delete(subs, l.subID)
			if len(subs) == 0 {
				delete(l.t.listeners, l.member)
			}
		}
		l.log.Debug("unsubscribed")
	})
	return nil
}

func (l *memListener) run(ctx context.Context, h FrameHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-l.queue:
			f, err := UnmarshalFrame(b)
			if err != nil {
				l.log.Error("dropping frame", slog.Any("error", err))
				continue
			}
			h(ctx, f)
		}
	}
}
