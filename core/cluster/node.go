package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/codewandler/mailroom-go/core/actor"
	"github.com/codewandler/mailroom-go/core/ds"
	"github.com/codewandler/mailroom-go/core/mailbox"
	"github.com/codewandler/mailroom-go/core/mailroom"
)

type (
	NodeOptions struct {
		Log *slog.Logger
		// Name identifies the member in the cluster. Default: node-<nanoid>.
		Name      string
		Registry  *mailbox.Registry
		Transport Transport
		Metrics   Metrics
	}

	// Node connects the topic mailboxes of one registry to the other
	// members of the cluster. It tells peers which topics have local
	// consumers and forwards locally published payloads to the peers that
	// asked for them.
	Node struct {
		log     *slog.Logger
		name    string
		reg     *mailbox.Registry
		tr      Transport
		metrics Metrics

		state   *actor.State[interestState]
		running atomic.Bool
	}
)

type interestState struct {
	// topic -> members that asked for it
	remote map[string]*ds.Set[string]
	// topic -> number of local decoded inboxes
	local   map[string]int
	members *ds.Set[string]
}

func NewNode(opts NodeOptions) *Node {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("node-%s", gonanoid.Must(6))
	}

	m := opts.Metrics
	if m == nil {
		m = NopMetrics()
	}

	return &Node{
		log:     log.With(slog.String("node", name)),
		name:    name,
		reg:     opts.Registry,
		tr:      opts.Transport,
		metrics: m,
		state: actor.NewState(opts.Registry.Context(), &interestState{
			remote:  map[string]*ds.Set[string]{},
			local:   map[string]int{},
			members: ds.NewSet[string](),
		}),
	}
}

func (n *Node) Name() string { return n.name }

// Run wires the node into the registry and starts listening on the
// transport. The node's tasks stop when ctx is done or the registry
// closes. Run must be called before local decoded inboxes are created,
// otherwise their interest is not announced.
func (n *Node) Run(ctx context.Context) (err error) {
	if !n.running.CompareAndSwap(false, true) {
		return ErrNodeRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		if err != nil {
			cancel()
			n.running.Store(false)
		}
	}()

	n.log.Info("starting node")

	updates := n.reg.Updates(ctx)

	stopPump, err := n.reg.Observe(KindOpOutbox, mailbox.Observer{
		Created: func(_ context.Context, box mailbox.AnyMailbox) {
			n.startPump(ctx, box)
		},
	})
	if err != nil {
		return err
	}
	context.AfterFunc(ctx, stopPump)

	inbound, err := mailbox.FanIn[Op](ctx, n.reg, KindOpInbox)
	if err != nil {
		return err
	}
	bookkeeping, err := mailbox.FanIn[Op](ctx, n.reg, KindOpInbox)
	if err != nil {
		return err
	}
	outbound, err := mailbox.FanIn[[]byte](ctx, n.reg, mailroom.KindRawOutbox)
	if err != nil {
		return err
	}

	if _, err := n.tr.Listen(ctx, n.name, n.receive); err != nil {
		return fmt.Errorf("listen as %s: %w", n.name, err)
	}

	sched := n.reg.Scheduler()
	for _, task := range []func(){
		func() { n.dispatch(ctx, inbound) },
		func() { n.track(ctx, bookkeeping) },
		func() { n.route(ctx, outbound) },
		func() { n.announce(ctx, updates) },
	} {
		if !sched.Schedule(task) {
			return mailbox.ErrRegistryClosed
		}
	}

	return nil
}

// UpdateMembership hands a new membership snapshot to the node. Members
// that joined get an outbox (and are told about local interest), members
// that left lose theirs and are forgotten by the interest table.
func (n *Node) UpdateMembership(ctx context.Context, members []string) error {
	if !n.running.Load() {
		return ErrNodeNotRunning
	}
	inbox, err := mailbox.GetMailbox(ctx, n.reg, OpInbox(n.name))
	if err != nil {
		return err
	}
	return inbox.Send(ctx, DeliverClusterBroadcast{Members: members})
}

// Members returns the current peers, excluding the node itself.
func (n *Node) Members() []string {
	v, _ := actor.Read(n.state, func(st *interestState) []string {
		return st.members.Values()
	})
	return v
}

// InterestedMembers returns the peers that asked for topic.
func (n *Node) InterestedMembers(topic string) []string {
	v, _ := actor.Read(n.state, func(st *interestState) []string {
		if s, ok := st.remote[topic]; ok {
			return s.Values()
		}
		return nil
	})
	return v
}

// LocalTopics returns the topics with at least one local decoded inbox.
func (n *Node) LocalTopics() []string {
	v, _ := actor.Read(n.state, func(st *interestState) []string {
		out := make([]string, 0, len(st.local))
		for t := range st.local {
			out = append(out, t)
		}
		return out
	})
	return v
}

// receive hands a frame from the transport to the inbox of its sender.
func (n *Node) receive(ctx context.Context, f Frame) {
	op, err := f.Decode()
	if err != nil {
		n.log.Warn("dropping frame",
			slog.String("member", f.From),
			slog.Any("error", err),
		)
		return
	}
	n.metrics.OpReceived(op.OpName())

	inbox, err := mailbox.GetMailbox(ctx, n.reg, OpInbox(f.From))
	if err != nil {
		n.log.Warn("no inbox for member", slog.String("member", f.From), slog.Any("error", err))
		return
	}
	if err := inbox.Send(ctx, op); err != nil {
		n.log.Warn("failed to queue op",
			slog.String("member", f.From),
			slog.String("op", op.OpName()),
			slog.Any("error", err),
		)
	}
}

// startPump forwards everything sent to an outbox to the transport, then
// re-advertises the local interest to the new member and asks it to do the
// same. The member may still hold us in its view from before a one-sided
// drop, in which case it would otherwise never re-advertise.
func (n *Node) startPump(ctx context.Context, box mailbox.AnyMailbox) {
	out, ok := mailbox.As[Op](box)
	if !ok {
		return
	}
	member := out.Address().Name()
	log := n.log.With(slog.String("member", member))

	sub := out.SubscribeWith(ctx, mailbox.OverflowBlock)
	started := n.reg.Scheduler().Schedule(func() {
		defer sub.Close()
		for env := range sub.All(ctx) {
			op := env.Message
			err := n.tr.Send(ctx, member, NewFrame(n.name, op))
			n.metrics.OpSent(op.OpName(), err == nil)
			if err != nil {
				log.Error("failed to send op", slog.String("op", op.OpName()), slog.Any("error", err))
			}
		}
	})
	if !started {
		sub.Close()
		return
	}

	// Runs before the outbox becomes visible, so later announcements
	// queue up behind these.
	for _, topic := range n.LocalTopics() {
		if err := out.Send(ctx, SubscribeTopic{Topic: topic}); err != nil {
			log.Warn("failed to re-advertise topic", slog.String("topic", topic), slog.Any("error", err))
			return
		}
	}
	if err := out.Send(ctx, SyncInterest{}); err != nil {
		log.Warn("failed to request interest", slog.Any("error", err))
		return
	}
	log.Debug("outbox ready")
}

// dispatch handles inbound deliveries and membership snapshots.
func (n *Node) dispatch(ctx context.Context, sub *mailbox.Subscription[Op]) {
	for env := range sub.All(ctx) {
		switch op := env.Message.(type) {
		case DeliverMessage:
			raw, err := mailbox.GetMailbox(ctx, n.reg, mailroom.RawInbox(op.Topic))
			if err != nil {
				n.log.Warn("no raw inbox", slog.String("topic", op.Topic), slog.Any("error", err))
				continue
			}
			if err := raw.Send(ctx, op.Content); err != nil {
				n.log.Warn("failed to deliver", slog.String("topic", op.Topic), slog.Any("error", err))
			}
		case DeliverClusterBroadcast:
			if env.Address.Name() != n.name {
				n.log.Debug("ignoring membership from peer", slog.String("member", env.Address.Name()))
				continue
			}
			n.applyMembership(ctx, op.Members)
		case SyncInterest:
			n.readvertise(ctx, env.Address.Name())
		}
	}
}

// readvertise sends the local topics to member, if it is a known peer.
func (n *Node) readvertise(ctx context.Context, member string) {
	out, err := mailbox.Lookup(ctx, n.reg, OpOutbox(member))
	if errors.Is(err, mailbox.ErrNotFound) {
		n.log.Debug("sync from unknown peer", slog.String("member", member))
		return
	}
	if err != nil {
		n.log.Warn("outbox lookup failed", slog.String("member", member), slog.Any("error", err))
		return
	}
	for _, topic := range n.LocalTopics() {
		if err := out.Send(ctx, SubscribeTopic{Topic: topic}); err != nil {
			n.log.Warn("failed to re-advertise topic", slog.String("member", member), slog.String("topic", topic), slog.Any("error", err))
			return
		}
	}
}

func (n *Node) applyMembership(ctx context.Context, members []string) {
	next := ds.NewSet[string]()
	for _, m := range members {
		if m != "" && m != n.name {
			next.Add(m)
		}
	}

	type change struct{ joined, left *ds.Set[string] }
	c, err := actor.Read(n.state, func(st *interestState) change {
		joined, left := st.members.Diff(next)
		st.members = next
		return change{joined: joined, left: left}
	})
	if err != nil {
		return
	}
	n.metrics.Members(next.Len())

	for _, m := range c.left.Values() {
		if err := n.reg.Evict(ctx, OpOutbox(m)); err != nil && !errors.Is(err, mailbox.ErrNotFound) {
			n.log.Warn("failed to evict outbox", slog.String("member", m), slog.Any("error", err))
		}
	}
	for _, m := range c.joined.Values() {
		if _, err := mailbox.GetMailbox(ctx, n.reg, OpOutbox(m)); err != nil {
			n.log.Warn("failed to create outbox", slog.String("member", m), slog.Any("error", err))
		}
	}

	if !c.joined.IsEmpty() || !c.left.IsEmpty() {
		n.log.Info("membership changed",
			slog.Any("joined", c.joined.Values()),
			slog.Any("left", c.left.Values()),
		)
	}
}

// track maintains the remote interest table.
func (n *Node) track(ctx context.Context, sub *mailbox.Subscription[Op]) {
	for env := range sub.All(ctx) {
		member := env.Address.Name()

		var op func(st *interestState)
		switch o := env.Message.(type) {
		case SubscribeTopic:
			op = func(st *interestState) {
				s, ok := st.remote[o.Topic]
				if !ok {
					s = ds.NewSet[string]()
					st.remote[o.Topic] = s
				}
				s.Add(member)
			}
		case UnsubscribeTopic:
			op = func(st *interestState) {
				if s, ok := st.remote[o.Topic]; ok {
					s.Remove(member)
					if s.IsEmpty() {
						delete(st.remote, o.Topic)
					}
				}
			}
		case DeliverClusterBroadcast:
			if member != n.name {
				continue
			}
			keep := ds.NewSet(o.Members...)
			op = func(st *interestState) {
				for topic, s := range st.remote {
					s.Remove(s.Removals(keep).Values()...)
					if s.IsEmpty() {
						delete(st.remote, topic)
					}
				}
			}
		default:
			continue
		}

		topics, err := actor.Read(n.state, func(st *interestState) int {
			op(st)
			return len(st.remote)
		})
		if err != nil {
			return
		}
		n.metrics.InterestTopics(topics)
	}
}

// route forwards locally published payloads to the interested members.
func (n *Node) route(ctx context.Context, sub *mailbox.Subscription[[]byte]) {
	for env := range sub.All(ctx) {
		topic := env.Address.Name()
		for _, m := range n.InterestedMembers(topic) {
			out, err := mailbox.Lookup(ctx, n.reg, OpOutbox(m))
			if errors.Is(err, mailbox.ErrNotFound) {
				n.metrics.UnknownPeer()
				n.log.Debug("skipping unknown peer", slog.String("member", m), slog.String("topic", topic))
				continue
			}
			if err != nil {
				n.log.Warn("outbox lookup failed", slog.String("member", m), slog.Any("error", err))
				continue
			}
			if err := out.Send(ctx, DeliverMessage{Topic: topic, Content: env.Message}); err != nil && !errors.Is(err, mailbox.ErrMailboxClosed) {
				n.log.Warn("failed to route", slog.String("member", m), slog.String("topic", topic), slog.Any("error", err))
			}
		}
	}
}

// announce tells all peers when a topic gains its first or loses its last
// local decoded inbox.
func (n *Node) announce(ctx context.Context, sub *mailbox.Subscription[mailbox.Update]) {
	for env := range sub.All(ctx) {
		u := env.Message
		if !mailroom.KindDecodedInbox.Matches(u.Address) {
			continue
		}
		topic := u.Address.Name()

		var op Op
		switch {
		case u.Created():
			first, err := actor.Read(n.state, func(st *interestState) bool {
				st.local[topic]++
				return st.local[topic] == 1
			})
			if err != nil {
				return
			}
			if first {
				op = SubscribeTopic{Topic: topic}
			}
		case u.Evicted():
			last, err := actor.Read(n.state, func(st *interestState) bool {
				if st.local[topic] == 0 {
					return false
				}
				st.local[topic]--
				if st.local[topic] == 0 {
					delete(st.local, topic)
					return true
				}
				return false
			})
			if err != nil {
				return
			}
			if last {
				op = UnsubscribeTopic{Topic: topic}
			}
		}
		if op == nil {
			continue
		}

		reached, err := mailbox.FanOut(ctx, n.reg, KindOpOutbox, op)
		if err != nil {
			n.log.Warn("failed to announce interest", slog.String("topic", topic), slog.Any("error", err))
			continue
		}
		n.log.Debug("announced interest",
			slog.String("op", op.OpName()),
			slog.String("topic", topic),
			slog.Int("members", reached),
		)
	}
}
