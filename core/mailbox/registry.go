package mailbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/codewandler/mailroom-go/core/actor"
)

type (
	Options struct {
		Context context.Context
		Log     *slog.Logger
		// Capacity is the queue size of every subscription. Default: DefaultCapacity.
		Capacity int
		// Overflow is the policy for full subscriber queues. Default: OverflowBlock.
		Overflow         Overflow
		Metrics          Metrics
		SchedulerMetrics actor.Metrics
	}

	// Observer is notified synchronously about mailbox lifecycle events.
	// Created runs in the goroutine that created the mailbox, before any
	// other caller can obtain it, so an observer that subscribes in Created
	// never misses a message. Observers must not request the mailbox whose
	// creation they are handling.
	Observer struct {
		Created func(ctx context.Context, box AnyMailbox)
		Evicted func(addr AnyAddress)
	}

	// Registry creates, memoizes and announces mailboxes. The address map
	// is owned by a single goroutine; every lookup-or-create is one
	// operation on that owner.
	Registry struct {
		ctx    context.Context
		cancel context.CancelFunc
		log    *slog.Logger
		cfg    boxConfig

		state   *actor.State[registryState]
		sched   actor.Scheduler
		updates *Mailbox[Update]

		closeOnce sync.Once
	}
)

type observerEntry struct {
	id   uint64
	kind Kind
	obs  Observer
}

type registryState struct {
	boxes     map[string]AnyMailbox
	observers []observerEntry
	nextID    uint64
	closed    bool
}

func (st *registryState) observersFor(k Kind) []Observer {
	var out []Observer
	for _, e := range st.observers {
		if e.kind == k {
			out = append(out, e.obs)
		}
	}
	return out
}

func (st *registryState) matching(k Kind) []AnyMailbox {
	var out []AnyMailbox
	for _, b := range st.boxes {
		if k.Matches(b.Addr()) {
			out = append(out, b)
		}
	}
	return out
}

// NewRegistry creates a registry. The update mailbox exists from the start.
func NewRegistry(opts Options) *Registry {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}

	ctx, cancel := context.WithCancel(opts.Context)
	log := opts.Log.With(slog.String("component", "registry"))

	r := &Registry{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		cfg: boxConfig{
			capacity: opts.Capacity,
			overflow: opts.Overflow,
			log:      log,
			metrics:  opts.Metrics,
		},
		sched: actor.NewScheduler(ctx, actor.SchedulerOptions{
			Name:    "registry",
			Log:     log,
			Metrics: opts.SchedulerMetrics,
		}),
	}

	r.updates = newMailbox(UpdateAddress, r.cfg)
	r.updates.markReady()
	r.state = actor.NewState(ctx, &registryState{
		boxes: map[string]AnyMailbox{UpdateAddress.String(): r.updates},
	})

	return r
}

// Context is done once the registry is closed.
func (r *Registry) Context() context.Context { return r.ctx }

// Scheduler runs long-lived tasks that should stop with the registry.
func (r *Registry) Scheduler() actor.Scheduler { return r.sched }

// Overflow returns the configured overflow policy.
func (r *Registry) Overflow() Overflow { return r.cfg.overflow }

// Updates subscribes to the lifecycle events published on UpdateAddress.
// Updates are never dropped: the subscription always blocks the publisher
// when full.
func (r *Registry) Updates(ctx context.Context) *Subscription[Update] {
	return r.updates.SubscribeWith(ctx, OverflowBlock)
}

// GetMailbox returns the mailbox for addr, creating it on first use.
//
// On creation, observers for addr's kind run first, then the mailbox
// becomes visible to concurrent callers, then Update{Created} is published
// on UpdateAddress.
func GetMailbox[M any](ctx context.Context, r *Registry, addr Address[M]) (*Mailbox[M], error) {
	type result struct {
		box       AnyMailbox
		created   bool
		observers []Observer
	}

	key := addr.String()
	res, err := actor.Read(r.state, func(st *registryState) result {
		if st.closed {
			return result{}
		}
		if b, ok := st.boxes[key]; ok {
			return result{box: b}
		}
		b := newMailbox(addr, r.cfg)
		st.boxes[key] = b
		return result{box: b, created: true, observers: st.observersFor(addr.Kind())}
	})
	if err != nil || res.box == nil {
		return nil, ErrRegistryClosed
	}

	mb, ok := As[M](res.box)
	if !ok {
		return nil, fmt.Errorf("%w: %s holds %s", ErrTypeMismatch, key, res.box.Addr().TypeName())
	}

	if !res.created {
		if err := mb.waitReady(ctx); err != nil {
			return nil, err
		}
		return mb, nil
	}

	for _, o := range res.observers {
		if o.Created != nil {
			o.Created(r.ctx, mb)
		}
	}
	mb.markReady()

	r.cfg.metrics.MailboxCreated(addr.Kind().String())
	r.log.Debug("mailbox created", slog.String("address", key))
	r.publish(ctx, Update{Type: UpdateCreated, Address: addr})

	return mb, nil
}

// Lookup returns the mailbox for addr without creating it.
func Lookup[M any](ctx context.Context, r *Registry, addr Address[M]) (*Mailbox[M], error) {
	key := addr.String()
	box, err := actor.Read(r.state, func(st *registryState) AnyMailbox {
		return st.boxes[key]
	})
	if err != nil {
		return nil, ErrRegistryClosed
	}
	if box == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	mb, ok := As[M](box)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTypeMismatch, key)
	}
	if err := mb.waitReady(ctx); err != nil {
		return nil, err
	}
	return mb, nil
}

// Evict removes the mailbox for addr and closes it, which ends all of its
// subscriptions. Observers are told, then Update{Evicted} is published.
func (r *Registry) Evict(ctx context.Context, addr AnyAddress) error {
	key := addr.String()
	if key == UpdateAddress.String() {
		return fmt.Errorf("%w: %s", ErrReservedAddress, key)
	}

	type result struct {
		box       AnyMailbox
		observers []Observer
	}
	res, err := actor.Read(r.state, func(st *registryState) result {
		b, ok := st.boxes[key]
		if !ok {
			return result{}
		}
		delete(st.boxes, key)
		return result{box: b, observers: st.observersFor(addr.Kind())}
	})
	if err != nil {
		return ErrRegistryClosed
	}
	if res.box == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	res.box.close()
	for _, o := range res.observers {
		if o.Evicted != nil {
			o.Evicted(addr)
		}
	}

	r.cfg.metrics.MailboxEvicted(addr.Kind().String())
	r.log.Debug("mailbox evicted", slog.String("address", key))
	r.publish(ctx, Update{Type: UpdateEvicted, Address: addr})
	return nil
}

func (r *Registry) publish(ctx context.Context, u Update) {
	if err := r.updates.Send(ctx, u); err != nil {
		r.log.Warn("failed to publish mailbox update",
			slog.String("update", u.Type.String()),
			slog.String("address", u.Address.String()),
			slog.Any("error", err),
		)
	}
}

// Observe registers obs for mailboxes of kind k created or evicted from now
// on. The returned function unregisters it.
func (r *Registry) Observe(k Kind, obs Observer) (func(), error) {
	_, unregister, err := r.observe(k, obs)
	return unregister, err
}

// observe registers obs and atomically returns the mailboxes of kind k that
// already exist, so the caller sees every matching mailbox exactly once.
func (r *Registry) observe(k Kind, obs Observer) ([]AnyMailbox, func(), error) {
	type result struct {
		id       uint64
		existing []AnyMailbox
		closed   bool
	}
	res, err := actor.Read(r.state, func(st *registryState) result {
		if st.closed {
			return result{closed: true}
		}
		st.nextID++
		st.observers = append(st.observers, observerEntry{id: st.nextID, kind: k, obs: obs})
		return result{id: st.nextID, existing: st.matching(k)}
	})
	if err != nil || res.closed {
		return nil, nil, ErrRegistryClosed
	}

	unregister := func() {
		_ = r.state.Process(func(st *registryState) {
			for i, e := range st.observers {
				if e.id == res.id {
					st.observers = append(st.observers[:i], st.observers[i+1:]...)
					return
				}
			}
		})
	}
	return res.existing, unregister, nil
}

// FanOut sends msg to every mailbox of kind k that exists right now and
// returns how many were reached. Mailboxes created later are not reached;
// mailboxes evicted meanwhile are skipped.
func FanOut[M any](ctx context.Context, r *Registry, k Kind, msg M) (int, error) {
	boxes, err := actor.Read(r.state, func(st *registryState) []AnyMailbox {
		return st.matching(k)
	})
	if err != nil {
		return 0, ErrRegistryClosed
	}

	n := 0
	for _, b := range boxes {
		mb, ok := As[M](b)
		if !ok {
			r.log.Warn("fan-out skipped mailbox of different type",
				slog.String("address", b.Addr().String()),
				slog.Any("error", ErrTypeMismatch),
			)
			continue
		}
		if err := mb.waitReady(ctx); err != nil {
			return n, err
		}
		if err := mb.Send(ctx, msg); err != nil {
			if errors.Is(err, ErrMailboxClosed) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

// FanIn merges the messages of all mailboxes of kind k into one
// subscription: those existing when FanIn is called and those created
// while the subscription is open. Forwarding from a mailbox stops when it
// is evicted. Per source mailbox order is kept; across sources it is not.
// Fan-in never drops or disconnects: its source and output queues block
// when full, whatever the registry's overflow policy.
func FanIn[M any](ctx context.Context, r *Registry, k Kind) (*Subscription[M], error) {
	fanCtx, cancel := context.WithCancel(r.ctx)
	out := newSubscription[M](r.cfg.capacity, OverflowBlock, cancel)

	attach := func(b AnyMailbox) {
		mb, ok := As[M](b)
		if !ok {
			r.log.Warn("fan-in skipped mailbox of different type",
				slog.String("address", b.Addr().String()),
				slog.Any("error", ErrTypeMismatch),
			)
			return
		}
		src := mb.SubscribeWith(fanCtx, OverflowBlock)
		r.sched.Schedule(func() {
			defer src.Close()
			for {
				env, err := src.Receive(fanCtx)
				if err != nil {
					return
				}
				if err := out.offer(fanCtx, env, r.cfg.metrics, k.String()); err != nil {
					return
				}
				if out.closed() {
					return
				}
			}
		})
	}

	existing, unregister, err := r.observe(k, Observer{
		Created: func(_ context.Context, b AnyMailbox) { attach(b) },
	})
	if err != nil {
		cancel()
		return nil, err
	}
	context.AfterFunc(fanCtx, func() {
		unregister()
		out.closeWith(ErrRegistryClosed)
	})

	for _, b := range existing {
		attach(b)
	}

	out.bind(ctx)
	return out, nil
}

// Close stops the owner goroutine, closes every mailbox and waits for all
// forwarding tasks. No updates are published for mailboxes closed this way.
func (r *Registry) Close() error {
	r.closeOnce.Do(func() {
		r.cancel()

		var boxes []AnyMailbox
		r.state.Final(func(st *registryState) {
			st.closed = true
			for _, b := range st.boxes {
				boxes = append(boxes, b)
			}
			st.boxes = map[string]AnyMailbox{}
			st.observers = nil
		})
		for _, b := range boxes {
			b.close()
		}
		r.sched.Wait()
		r.log.Debug("registry closed")
	})
	return nil
}
