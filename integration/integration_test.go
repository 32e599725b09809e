package integration

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/mailroom-go/core/app"
	"github.com/codewandler/mailroom-go/core/cluster"
	"github.com/codewandler/mailroom-go/core/mailbox"
	"github.com/codewandler/mailroom-go/core/mailroom"
)

type (
	quote struct {
		Symbol string
		Bid    float64
	}
	trade struct {
		Symbol string
		Qty    int
	}
)

// membership is a hand-driven membership source shared by all apps.
type membership struct {
	mu    sync.Mutex
	sinks map[string]cluster.MembershipSink
}

func (m *membership) source(name string) app.MembershipFunc {
	return func(ctx context.Context, sink cluster.MembershipSink) error {
		m.mu.Lock()
		m.sinks[name] = sink
		m.mu.Unlock()
		<-ctx.Done()
		return nil
	}
}

// set publishes members to the sinks of the named apps.
func (m *membership) set(t *testing.T, to []string, members ...string) {
	t.Helper()
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		for _, name := range to {
			if _, ok := m.sinks[name]; !ok {
				return false
			}
		}
		return true
	}, time.Second, time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range to {
		require.NoError(t, m.sinks[name].UpdateMembership(t.Context(), members))
	}
}

func interested(a *app.App, topic string, want ...string) func() bool {
	return func() bool {
		got := a.Node().InterestedMembers(topic)
		slices.Sort(got)
		return slices.Equal(got, want)
	}
}

func receive[M any](t *testing.T, s *mailroom.Session[M]) M {
	t.Helper()
	type result struct {
		v   M
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := s.Receive()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.v
	case <-time.After(time.Second):
		t.Fatal("no message received")
		var zero M
		return zero
	}
}

func TestIntegration(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)

	var (
		tr      = cluster.CreateInMemoryTransport(t)
		members = &membership{sinks: map[string]cluster.MembershipSink{}}
		names   = []string{"a", "b", "c"}
		apps    = map[string]*app.App{}
	)

	for _, name := range names {
		a, err := app.Run(app.Config{
			Context: t.Context(),
			Node: app.NodeConfig{
				Name:       name,
				Transport:  tr,
				Membership: members.source(name),
			},
			Mailbox: app.MailboxConfig{Capacity: 16, Overflow: mailbox.OverflowBlock},
		})
		require.NoError(t, err)
		t.Cleanup(a.Stop)
		apps[name] = a
	}
	members.set(t, names, names...)

	a, b, c := apps["a"], apps["b"], apps["c"]

	quotesA, err := mailroom.Subscribe[quote](t.Context(), a.Room(), "quotes")
	require.NoError(t, err)
	quotesC, err := mailroom.Subscribe[quote](t.Context(), c.Room(), "quotes")
	require.NoError(t, err)
	tradesC, err := mailroom.Subscribe[trade](t.Context(), c.Room(), "trades")
	require.NoError(t, err)

	require.Eventually(t, interested(b, "quotes", "a", "c"), time.Second, time.Millisecond)
	require.Eventually(t, interested(b, "trades", "c"), time.Second, time.Millisecond)

	// quotes reach both interested members in publish order
	for i := range 10 {
		require.NoError(t, mailroom.Send(t.Context(), b.Room(), "quotes", quote{Symbol: "ACME", Bid: float64(i)}))
	}
	for i := range 10 {
		require.Equal(t, float64(i), receive(t, quotesA).Bid)
		require.Equal(t, float64(i), receive(t, quotesC).Bid)
	}

	// trades only reach c
	require.NoError(t, mailroom.Send(t.Context(), a.Room(), "trades", trade{Symbol: "ACME", Qty: 3}))
	require.Equal(t, 3, receive(t, tradesC).Qty)

	// a leaves the quotes topic
	require.NoError(t, mailroom.Unsubscribe[quote](t.Context(), a.Room(), "quotes"))
	require.Eventually(t, interested(b, "quotes", "c"), time.Second, time.Millisecond)

	// c is partitioned away
	members.set(t, []string{"a", "b"}, "a", "b")
	members.set(t, []string{"c"}, "c")
	require.Eventually(t, interested(b, "quotes"), time.Second, time.Millisecond)
	require.Eventually(t, interested(a, "trades"), time.Second, time.Millisecond)

	// the partition heals and c re-advertises its topics
	members.set(t, names, names...)
	require.Eventually(t, interested(b, "quotes", "c"), time.Second, time.Millisecond)
	require.Eventually(t, interested(a, "trades", "c"), time.Second, time.Millisecond)

	require.NoError(t, mailroom.Send(t.Context(), b.Room(), "quotes", quote{Symbol: "ACME", Bid: 42}))
	require.Equal(t, float64(42), receive(t, quotesC).Bid)
}
