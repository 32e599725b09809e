package mailroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/codewandler/mailroom-go/core/codec"
	"github.com/codewandler/mailroom-go/core/mailbox"
	"github.com/codewandler/mailroom-go/core/reflector"
)

type (
	Options struct {
		Log     *slog.Logger
		Metrics Metrics
		// OnCodecError is called for every payload that could not be
		// converted. The forwarder keeps running either way.
		OnCodecError func(addr mailbox.AnyAddress, err error)
		// Loopback also delivers locally published payloads to the local
		// raw inbox of the topic. Without it, publishes only reach
		// remote members.
		Loopback bool
	}

	// Mailroom is the caller-facing entry point: it resolves topic
	// addresses on a registry and runs the codec operators that keep the
	// raw and typed mailboxes of a topic in sync.
	Mailroom struct {
		reg      *mailbox.Registry
		log      *slog.Logger
		metrics  Metrics
		onErr    func(mailbox.AnyAddress, error)
		loopback bool

		mu     sync.RWMutex
		codecs map[string]binding

		stop      []func()
		closed    atomic.Bool
		closeOnce sync.Once
	}
)

// binding is a codec registered for one message type. It starts the
// forwarders for typed mailboxes of that type.
type binding interface {
	startDecoder(ctx context.Context, room *Mailroom, box mailbox.AnyMailbox) error
	startEncoder(ctx context.Context, room *Mailroom, box mailbox.AnyMailbox) error
}

// New creates a mailroom on reg and registers its codec operators.
func New(reg *mailbox.Registry, opts Options) (*Mailroom, error) {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}

	room := &Mailroom{
		reg:      reg,
		log:      opts.Log.With(slog.String("component", "mailroom")),
		metrics:  opts.Metrics,
		onErr:    opts.OnCodecError,
		loopback: opts.Loopback,
		codecs:   map[string]binding{},
	}

	stopDecode, err := reg.Observe(KindDecodedInbox, mailbox.Observer{
		Created: func(ctx context.Context, box mailbox.AnyMailbox) {
			room.start(ctx, box, binding.startDecoder)
		},
	})
	if err != nil {
		return nil, err
	}
	stopEncode, err := reg.Observe(KindEncodedOutbox, mailbox.Observer{
		Created: func(ctx context.Context, box mailbox.AnyMailbox) {
			room.start(ctx, box, binding.startEncoder)
		},
	})
	if err != nil {
		stopDecode()
		return nil, err
	}
	room.stop = []func(){stopDecode, stopEncode}

	return room, nil
}

// Registry returns the registry the mailroom resolves addresses on.
func (m *Mailroom) Registry() *mailbox.Registry { return m.reg }

// Close unregisters the codec operators. Running forwarders stop with
// their mailboxes or the registry. Open and Send fail with ErrClosed
// afterwards.
func (m *Mailroom) Close() {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		for _, fn := range m.stop {
			fn()
		}
	})
}

// Register binds c to message type T. Typed topic mailboxes of T created
// afterwards use it.
func Register[T any](m *Mailroom, c codec.Codec[T]) error {
	name := reflector.TypeName[T]()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codecs[name]; ok {
		return fmt.Errorf("%w: %s", ErrCodecRegistered, name)
	}
	m.codecs[name] = typedBinding[T]{codec: c}
	return nil
}

// ensureCodec registers codec.JSON for T unless T already has a codec. It
// fails if the codec registered under T's name belongs to another type.
func ensureCodec[T any](m *Mailroom) error {
	if m.closed.Load() {
		return ErrClosed
	}
	err := Register(m, codec.JSON[T]())
	if err == nil || !errors.Is(err, ErrCodecRegistered) {
		return err
	}
	b, _ := m.binding(reflector.TypeName[T]())
	if _, ok := b.(typedBinding[T]); !ok {
		return fmt.Errorf("%w: codec for %s has type %T", mailbox.ErrTypeMismatch, reflector.TypeName[T](), b)
	}
	return nil
}

func (m *Mailroom) binding(typeName string) (binding, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.codecs[typeName]
	return b, ok
}

func (m *Mailroom) start(ctx context.Context, box mailbox.AnyMailbox, fn func(binding, context.Context, *Mailroom, mailbox.AnyMailbox) error) {
	addr := box.Addr()
	b, ok := m.binding(addr.TypeName())
	if !ok {
		m.log.Warn("typed mailbox has no codec",
			slog.String("address", addr.String()),
			slog.Any("error", ErrNoCodec),
		)
		return
	}
	if err := fn(b, ctx, m, box); err != nil {
		m.log.Warn("failed to start codec operator",
			slog.String("address", addr.String()),
			slog.Any("error", err),
		)
		return
	}
	m.log.Debug("codec operator started", slog.String("address", addr.String()))
}

func (m *Mailroom) codecFailed(direction string, addr mailbox.AnyAddress, err error) {
	m.metrics.CodecCompleted(direction, false)
	m.log.Warn("codec failed",
		slog.String("direction", direction),
		slog.String("address", addr.String()),
		slog.Any("error", err),
	)
	if m.onErr != nil {
		m.onErr(addr, err)
	}
}

type typedBinding[T any] struct {
	codec codec.Codec[T]
}

// startDecoder mirrors RawInbox(topic) into the decoded inbox box.
func (b typedBinding[T]) startDecoder(ctx context.Context, room *Mailroom, box mailbox.AnyMailbox) error {
	dst, ok := mailbox.As[T](box)
	if !ok {
		return fmt.Errorf("%w: %s", mailbox.ErrTypeMismatch, box.Addr())
	}
	raw, err := mailbox.GetMailbox(ctx, room.reg, RawInbox(box.Addr().Name()))
	if err != nil {
		return err
	}

	src := raw.SubscribeWith(ctx, mailbox.OverflowBlock)
	forward(room, src, dst.Done(), func(payload []byte) error {
		v, err := b.codec.Decode(payload)
		if err != nil {
			room.codecFailed(DirectionDecode, dst.Addr(), err)
			return nil
		}
		room.metrics.CodecCompleted(DirectionDecode, true)
		return dst.Send(ctx, v)
	})
	return nil
}

// startEncoder mirrors the encoded outbox box into RawOutbox(topic).
func (b typedBinding[T]) startEncoder(ctx context.Context, room *Mailroom, box mailbox.AnyMailbox) error {
	src, ok := mailbox.As[T](box)
	if !ok {
		return fmt.Errorf("%w: %s", mailbox.ErrTypeMismatch, box.Addr())
	}
	topic := box.Addr().Name()
	dst, err := mailbox.GetMailbox(ctx, room.reg, RawOutbox(topic))
	if err != nil {
		return err
	}
	var local *mailbox.Mailbox[[]byte]
	if room.loopback {
		if local, err = mailbox.GetMailbox(ctx, room.reg, RawInbox(topic)); err != nil {
			return err
		}
	}

	sub := src.SubscribeWith(ctx, mailbox.OverflowBlock)
	forward(room, sub, src.Done(), func(v T) error {
		payload, err := b.codec.Encode(v)
		if err != nil {
			room.codecFailed(DirectionEncode, src.Addr(), err)
			return nil
		}
		room.metrics.CodecCompleted(DirectionEncode, true)
		if local != nil {
			if err := local.Send(ctx, payload); err != nil {
				return err
			}
		}
		return dst.Send(ctx, payload)
	})
	return nil
}

// forward runs handle for every envelope of sub until sub ends, stop is
// closed or handle fails.
func forward[M any](room *Mailroom, sub *mailbox.Subscription[M], stop <-chan struct{}, handle func(M) error) {
	started := room.reg.Scheduler().Schedule(func() {
		defer sub.Close()
		for {
			select {
			case env := <-sub.C():
				if err := handle(env.Message); err != nil {
					if !errors.Is(err, mailbox.ErrMailboxClosed) && !errors.Is(err, context.Canceled) {
						room.log.Warn("codec forwarder stopped",
							slog.String("address", env.Address.String()),
							slog.Any("error", err),
						)
					}
					return
				}
			case <-sub.Done():
				return
			case <-stop:
				return
			}
		}
	})
	if !started {
		sub.Close()
	}
}
