package cluster

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/mailroom-go/core/mailbox"
	"github.com/codewandler/mailroom-go/core/mailroom"
)

type Price struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}

type Quote struct {
	Bid float64 `json:"bid"`
}

func interested(n *Node, topic string, want ...string) func() bool {
	return func() bool {
		got := n.InterestedMembers(topic)
		slices.Sort(got)
		return slices.Equal(got, want)
	}
}

func nothingWithin[M any](t *testing.T, s *mailbox.Subscription[M], d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), d)
	defer cancel()
	_, err := s.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNode_InterestPropagation(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	c := CreateTestCluster(t, tr, "a", "b")
	a, b := c[0], c[1]

	raw, err := mailbox.GetMailbox(t.Context(), a.Registry, mailroom.RawInbox("prices"))
	require.NoError(t, err)
	rawSub := raw.Subscribe(t.Context())

	s, err := mailroom.Subscribe[Price](t.Context(), a.Room, "prices")
	require.NoError(t, err)

	require.Eventually(t, interested(b.Node, "prices", "a"), time.Second, time.Millisecond)
	require.Empty(t, a.Node.InterestedMembers("prices"))

	require.NoError(t, mailroom.Send(t.Context(), b.Room, "prices", Price{Symbol: "ACME", Value: 9}))

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	env, err := rawSub.Receive(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"symbol":"ACME","value":9}`, string(env.Message))

	p, err := s.Receive()
	require.NoError(t, err)
	require.Equal(t, Price{Symbol: "ACME", Value: 9}, p)
}

func TestNode_UnsubscribeStopsDelivery(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	c := CreateTestCluster(t, tr, "a", "b")
	a, b := c[0], c[1]

	raw, err := mailbox.GetMailbox(t.Context(), a.Registry, mailroom.RawInbox("prices"))
	require.NoError(t, err)
	rawSub := raw.Subscribe(t.Context())

	_, err = mailroom.Subscribe[Price](t.Context(), a.Room, "prices")
	require.NoError(t, err)
	require.Eventually(t, interested(b.Node, "prices", "a"), time.Second, time.Millisecond)

	require.NoError(t, mailroom.Unsubscribe[Price](t.Context(), a.Room, "prices"))
	require.Eventually(t, interested(b.Node, "prices"), time.Second, time.Millisecond)

	require.NoError(t, mailroom.Send(t.Context(), b.Room, "prices", Price{Symbol: "LATE"}))
	nothingWithin(t, rawSub, 50*time.Millisecond)
}

func TestNode_InterestIsRefCounted(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	c := CreateTestCluster(t, tr, "a", "b")
	a, b := c[0], c[1]

	_, err := mailroom.Subscribe[Price](t.Context(), a.Room, "prices")
	require.NoError(t, err)
	quotes, err := mailroom.Subscribe[Quote](t.Context(), a.Room, "prices")
	require.NoError(t, err)
	require.Eventually(t, interested(b.Node, "prices", "a"), time.Second, time.Millisecond)
	require.ElementsMatch(t, []string{"prices"}, a.Node.LocalTopics())

	// one of two decoded inboxes gone: the topic is still wanted
	require.NoError(t, mailroom.Unsubscribe[Price](t.Context(), a.Room, "prices"))
	require.NoError(t, mailroom.Send(t.Context(), b.Room, "prices", Quote{Bid: 1.25}))
	q, err := quotes.Receive()
	require.NoError(t, err)
	require.Equal(t, 1.25, q.Bid)
	require.Equal(t, []string{"a"}, b.Node.InterestedMembers("prices"))

	require.NoError(t, mailroom.Unsubscribe[Quote](t.Context(), a.Room, "prices"))
	require.Eventually(t, interested(b.Node, "prices"), time.Second, time.Millisecond)
	require.Empty(t, a.Node.LocalTopics())
}

func TestNode_ReadvertisesToLateJoiner(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	a := CreateTestMember(t, tr, "a")

	_, err := mailroom.Subscribe[Price](t.Context(), a.Room, "prices")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return slices.Contains(a.Node.LocalTopics(), "prices")
	}, time.Second, time.Millisecond)

	b := CreateTestMember(t, tr, "b")
	SetTestMembership(t, a, b)

	require.Eventually(t, interested(b.Node, "prices", "a"), time.Second, time.Millisecond)
}

func TestNode_MembershipPrunesDepartedMembers(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	c := CreateTestCluster(t, tr, "a", "b", "c")
	a, b := c[0], c[1]

	_, err := mailroom.Subscribe[Price](t.Context(), a.Room, "prices")
	require.NoError(t, err)
	require.Eventually(t, interested(b.Node, "prices", "a"), time.Second, time.Millisecond)
	require.ElementsMatch(t, []string{"a", "c"}, b.Node.Members())

	require.NoError(t, b.Node.UpdateMembership(t.Context(), []string{"b", "c"}))
	require.Eventually(t, interested(b.Node, "prices"), time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return slices.Equal(b.Node.Members(), []string{"c"})
	}, time.Second, time.Millisecond)

	_, err = mailbox.Lookup(t.Context(), b.Registry, OpOutbox("a"))
	require.ErrorIs(t, err, mailbox.ErrNotFound)
	_, err = mailbox.Lookup(t.Context(), b.Registry, OpOutbox("c"))
	require.NoError(t, err)
}

type countingMetrics struct {
	nopMetrics
	unknown atomic.Int32
}

func (m *countingMetrics) UnknownPeer() { m.unknown.Add(1) }

func TestNode_UnknownPeerIsSkipped(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	m := &countingMetrics{}
	b := CreateTestMember(t, tr, "b", func(o *NodeOptions) { o.Metrics = m })

	// interest from a member that was never part of the membership
	ghost, err := mailbox.GetMailbox(t.Context(), b.Registry, OpInbox("ghost"))
	require.NoError(t, err)
	require.NoError(t, ghost.Send(t.Context(), SubscribeTopic{Topic: "prices"}))
	require.Eventually(t, interested(b.Node, "prices", "ghost"), time.Second, time.Millisecond)

	require.NoError(t, mailroom.Send(t.Context(), b.Room, "prices", Price{Symbol: "X"}))
	require.Eventually(t, func() bool { return m.unknown.Load() == 1 }, time.Second, time.Millisecond)
}

func TestNode_DropsBadFrames(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	c := CreateTestCluster(t, tr, "a", "b")
	a, b := c[0], c[1]

	require.NoError(t, tr.Send(t.Context(), "b", Frame{V: FrameVersion, From: "a", Op: "gossip"}))
	require.NoError(t, tr.Send(t.Context(), "b", Frame{V: 99, From: "a", Op: OpNameSubscribe, Topic: "x"}))

	_, err := mailroom.Subscribe[Price](t.Context(), a.Room, "prices")
	require.NoError(t, err)
	require.Eventually(t, interested(b.Node, "prices", "a"), time.Second, time.Millisecond)
	require.Empty(t, b.Node.InterestedMembers("x"))
}

func TestNode_IgnoresMembershipFromPeers(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	c := CreateTestCluster(t, tr, "a", "b")
	b := c[1]

	require.NoError(t, tr.Send(t.Context(), "b", NewFrame("a", DeliverClusterBroadcast{Members: []string{"b"}})))
	// a subscribe sent afterwards on the same channel proves the broadcast was processed
	require.NoError(t, tr.Send(t.Context(), "b", NewFrame("a", SubscribeTopic{Topic: "sync"})))
	require.Eventually(t, interested(b.Node, "sync", "a"), time.Second, time.Millisecond)

	require.Equal(t, []string{"a"}, b.Node.Members())
}

func TestNode_RunTwice(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	a := CreateTestMember(t, tr, "a")
	require.ErrorIs(t, a.Node.Run(t.Context()), ErrNodeRunning)
}

func TestNode_UpdateMembershipBeforeRun(t *testing.T) {
	n := NewNode(NodeOptions{
		Registry:  mailbox.CreateTestRegistry(t),
		Transport: CreateInMemoryTransport(t),
	})
	require.Contains(t, n.Name(), "node-")
	require.ErrorIs(t, n.UpdateMembership(t.Context(), []string{"x"}), ErrNodeNotRunning)
}

func TestStaticMembership(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	a := CreateTestMember(t, tr, "a")

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- StaticMembership{Members: []string{"a", "b", "c"}}.Run(ctx, a.Node)
	}()

	require.Eventually(t, func() bool {
		return slices.Equal(a.Node.Members(), []string{"b", "c"})
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestNode_SurvivesBurstUnderEveryOverflowPolicy(t *testing.T) {
	for _, policy := range []mailbox.Overflow{mailbox.OverflowBlock, mailbox.OverflowDropOldest, mailbox.OverflowDisconnect} {
		t.Run(policy.String(), func(t *testing.T) {
			tr := CreateInMemoryTransport(t)
			reg := mailbox.CreateTestRegistry(t, func(o *mailbox.Options) {
				o.Capacity = 2
				o.Overflow = policy
			})
			a := CreateTestMemberOn(t, tr, reg, "a")

			for i := range 200 {
				require.NoError(t, tr.Send(t.Context(), "a", NewFrame("b", SubscribeTopic{Topic: fmt.Sprintf("t-%d", i)})))
			}
			require.NoError(t, tr.Send(t.Context(), "a", NewFrame("b", SubscribeTopic{Topic: "late"})))

			require.Eventually(t, interested(a.Node, "late", "b"), time.Second, time.Millisecond)
			for i := range 200 {
				require.Equal(t, []string{"b"}, a.Node.InterestedMembers(fmt.Sprintf("t-%d", i)))
			}

			// dispatch is still alive as well
			raw, err := mailbox.GetMailbox(t.Context(), reg, mailroom.RawInbox("late"))
			require.NoError(t, err)
			rawSub := raw.Subscribe(t.Context())
			require.NoError(t, tr.Send(t.Context(), "a", NewFrame("b", DeliverMessage{Topic: "late", Content: []byte("x")})))

			ctx, cancel := context.WithTimeout(t.Context(), time.Second)
			defer cancel()
			env, err := rawSub.Receive(ctx)
			require.NoError(t, err)
			require.Equal(t, []byte("x"), env.Message)
		})
	}
}

func TestNode_OneSidedDropHeals(t *testing.T) {
	tr := CreateInMemoryTransport(t)
	c := CreateTestCluster(t, tr, "a", "b")
	a, b := c[0], c[1]

	_, err := mailroom.Subscribe[Price](t.Context(), b.Room, "prices")
	require.NoError(t, err)
	require.Eventually(t, interested(a.Node, "prices", "b"), time.Second, time.Millisecond)

	// only a drops b; b keeps a in its view the whole time
	require.NoError(t, a.Node.UpdateMembership(t.Context(), []string{"a"}))
	require.Eventually(t, func() bool {
		return len(a.Node.Members()) == 0 && len(a.Node.InterestedMembers("prices")) == 0
	}, time.Second, time.Millisecond)

	require.NoError(t, a.Node.UpdateMembership(t.Context(), []string{"a", "b"}))
	require.Eventually(t, interested(a.Node, "prices", "b"), time.Second, time.Millisecond)
	require.Equal(t, []string{"a"}, b.Node.Members())
}
