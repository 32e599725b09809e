package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	natsgo "github.com/nats-io/nats.go"

	"github.com/codewandler/mailroom-go/core/cluster"
)

type TransportConfig struct {
	Connect       Connector    // Connect is used to create the underlying NATS connection. If nil, ConnectDefault() is used.
	Log           *slog.Logger // Log for diagnostics (optional)
	SubjectPrefix string       // SubjectPrefix for member subjects, e.g. "mailroom" -> mailroom.member.<token>
}

// Transport sends frames over core NATS. Every member listens on its own
// subject. Delivery is at most once; NATS keeps per-publisher order.
type Transport struct {
	nc      *natsgo.Conn
	closeNc closeFunc
	log     *slog.Logger
	prefix  string

	mu   sync.Mutex
	subs map[*natsgo.Subscription]struct{}

	closed atomic.Bool
}

func NewTransport(cfg TransportConfig) (*Transport, error) {
	connFn := cfg.Connect
	if connFn == nil {
		connFn = ConnectDefault()
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	prefix := cfg.SubjectPrefix
	if prefix == "" {
		prefix = "mailroom"
	}

	nc, closeNc, err := connFn()
	if err != nil {
		return nil, err
	}

	return &Transport{
		nc:      nc,
		closeNc: closeNc,
		log:     log.With(slog.String("transport", "nats")),
		prefix:  prefix,
		subs:    make(map[*natsgo.Subscription]struct{}),
	}, nil
}

// subjectMember returns the subject a member listens on.
func (t *Transport) subjectMember(member string) string {
	return t.prefix + ".member." + memberToken(member)
}

// Send publishes f to member. NATS does not know whether anybody listens,
// so a missing member is never reported.
func (t *Transport) Send(ctx context.Context, member string, f cluster.Frame) error {
	if t.closed.Load() {
		return cluster.ErrTransportClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := cluster.MarshalFrame(f)
	if err != nil {
		return err
	}
	if err := t.nc.Publish(t.subjectMember(member), payload); err != nil {
		return fmt.Errorf("nats: publish: %w", err)
	}
	return nil
}

func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.mu.Lock()
	for s := range t.subs {
		_ = s.Unsubscribe()
	}
	t.subs = map[*natsgo.Subscription]struct{}{}
	t.mu.Unlock()
	if t.nc != nil {
		_ = t.nc.Drain()
		t.closeNc()
	}
	return nil
}

// Listen subscribes to the subject of member. The handler runs on the
// subscription's delivery goroutine, one frame at a time.
func (t *Transport) Listen(ctx context.Context, member string, h cluster.FrameHandler) (cluster.Subscription, error) {
	if t.closed.Load() {
		return nil, cluster.ErrTransportClosed
	}
	subj := t.subjectMember(member)
	log := t.log.With(slog.String("member", member))

	sub, err := t.nc.Subscribe(subj, func(msg *natsgo.Msg) {
		f, err := cluster.UnmarshalFrame(msg.Data)
		if err != nil {
			log.Error("failed to decode frame", slog.Any("error", err))
			return
		}
		h(ctx, f)
	})
	if err != nil {
		return nil, fmt.Errorf("nats: subscribe %s: %w", subj, err)
	}

	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()

	s := &subscription{sub: sub, t: t}
	context.AfterFunc(ctx, func() {
		_ = s.Unsubscribe()
	})

	log.Debug("listening", slog.String("subject", subj))
	return s, nil
}

type subscription struct {
	sub  *natsgo.Subscription
	t    *Transport
	once sync.Once
}

func (s *subscription) Unsubscribe() (err error) {
	s.once.Do(func() {
		err = s.sub.Unsubscribe()
		s.t.mu.Lock()
		delete(s.t.subs, s.sub)
		s.t.mu.Unlock()
	})
	return err
}

var _ cluster.Transport = &Transport{}
