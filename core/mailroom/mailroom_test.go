package mailroom

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/codewandler/mailroom-go/core/codec"
	"github.com/codewandler/mailroom-go/core/mailbox"
)

var kindTest = mailbox.RegisterKind("mailroom.test")

type Price struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}

func receiveWithin[M any](t *testing.T, s *mailbox.Subscription[M], d time.Duration) (M, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), d)
	defer cancel()
	env, err := s.Receive(ctx)
	return env.Message, err == nil
}

func TestMailroom_Decode(t *testing.T) {
	room := CreateTestMailroom(t, Options{})

	s, err := Subscribe[Price](t.Context(), room, "prices")
	require.NoError(t, err)

	raw, err := mailbox.GetMailbox(t.Context(), room.Registry(), RawInbox("prices"))
	require.NoError(t, err)
	require.NoError(t, raw.Send(t.Context(), []byte(`{"symbol":"ACME","value":1.5}`)))

	p, err := s.Receive()
	require.NoError(t, err)
	require.Equal(t, Price{Symbol: "ACME", Value: 1.5}, p)
}

func TestMailroom_CorruptPayloadDoesNotStopDecoder(t *testing.T) {
	var (
		mu     sync.Mutex
		failed []error
	)
	room := CreateTestMailroom(t, Options{
		OnCodecError: func(addr mailbox.AnyAddress, err error) {
			mu.Lock()
			failed = append(failed, err)
			mu.Unlock()
		},
	})

	s, err := Subscribe[Price](t.Context(), room, "prices")
	require.NoError(t, err)
	raw, err := mailbox.GetMailbox(t.Context(), room.Registry(), RawInbox("prices"))
	require.NoError(t, err)

	require.NoError(t, raw.Send(t.Context(), []byte{1, 2, 3}))
	require.NoError(t, raw.Send(t.Context(), []byte(`{"symbol":"OK","value":2}`)))

	p, err := s.Receive()
	require.NoError(t, err)
	require.Equal(t, "OK", p.Symbol)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1)
	require.ErrorIs(t, failed[0], codec.ErrDecode)
}

func TestMailroom_Encode(t *testing.T) {
	room := CreateTestMailroom(t, Options{})

	raw, err := mailbox.GetMailbox(t.Context(), room.Registry(), RawOutbox("prices"))
	require.NoError(t, err)
	out := raw.Subscribe(t.Context())

	require.NoError(t, Send(t.Context(), room, "prices", Price{Symbol: "ACME", Value: 3}))

	payload, ok := receiveWithin(t, out, time.Second)
	require.True(t, ok)
	require.JSONEq(t, `{"symbol":"ACME","value":3}`, string(payload))
}

func TestMailroom_RoundTrip(t *testing.T) {
	room := CreateTestMailroom(t, Options{})

	raw, err := mailbox.GetMailbox(t.Context(), room.Registry(), RawOutbox("rt"))
	require.NoError(t, err)
	out := raw.Subscribe(t.Context())
	s, err := Subscribe[Price](t.Context(), room, "rt")
	require.NoError(t, err)
	in, err := mailbox.GetMailbox(t.Context(), room.Registry(), RawInbox("rt"))
	require.NoError(t, err)

	values := []Price{{"A", 1}, {"B", -2.25}, {"", 0}}
	for _, v := range values {
		require.NoError(t, Send(t.Context(), room, "rt", v))
		payload, ok := receiveWithin(t, out, time.Second)
		require.True(t, ok)

		// feed the encoded bytes back in as if a peer had sent them
		require.NoError(t, in.Send(t.Context(), payload))
		got, err := s.Receive()
		require.NoError(t, err)
		require.Equal(t, v, got)
	}
}

func TestMailroom_Loopback(t *testing.T) {
	room := CreateTestMailroom(t, Options{Loopback: true})

	s, err := Subscribe[Price](t.Context(), room, "local")
	require.NoError(t, err)
	require.NoError(t, Send(t.Context(), room, "local", Price{Symbol: "L"}))

	p, err := s.Receive()
	require.NoError(t, err)
	require.Equal(t, "L", p.Symbol)
}

func TestMailroom_NoLoopbackByDefault(t *testing.T) {
	room := CreateTestMailroom(t, Options{})

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	s, err := Subscribe[Price](ctx, room, "local")
	require.NoError(t, err)
	require.NoError(t, Send(t.Context(), room, "local", Price{Symbol: "L"}))

	_, err = s.Receive()
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMailroom_Proto(t *testing.T) {
	room := CreateTestMailroom(t, Options{})
	require.NoError(t, Register(room, codec.Proto[*wrapperspb.StringValue]()))
	require.ErrorIs(t, Register(room, codec.Proto[*wrapperspb.StringValue]()), ErrCodecRegistered)

	s, err := Subscribe[*wrapperspb.StringValue](t.Context(), room, "names")
	require.NoError(t, err)

	b, err := proto.Marshal(wrapperspb.String("alice"))
	require.NoError(t, err)
	raw, err := mailbox.GetMailbox(t.Context(), room.Registry(), RawInbox("names"))
	require.NoError(t, err)
	require.NoError(t, raw.Send(t.Context(), b))

	v, err := s.Receive()
	require.NoError(t, err)
	require.Equal(t, "alice", v.GetValue())
}

func TestMailroom_Receive(t *testing.T) {
	room := CreateTestMailroom(t, Options{Loopback: true})

	got := make(chan Price, 1)
	go func() {
		p, err := Receive[Price](t.Context(), room, "once")
		if err == nil {
			got <- p
		}
	}()

	// publish until the receiver is subscribed
	require.Eventually(t, func() bool {
		_ = Send(t.Context(), room, "once", Price{Symbol: "X"})
		select {
		case p := <-got:
			return p.Symbol == "X"
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSession_Messages(t *testing.T) {
	room := CreateTestMailroom(t, Options{})

	s, err := Open(t.Context(), room, mailbox.NewAddress[int](kindTest, "ints"))
	require.NoError(t, err)
	for i := range 3 {
		require.NoError(t, s.Send(i))
	}

	var got []int
	for v := range s.Messages() {
		got = append(got, v)
		if len(got) == 3 {
			break
		}
	}
	require.Equal(t, []int{0, 1, 2}, got)
}

func TestSession_ScopeEndsSubscriptionOnly(t *testing.T) {
	room := CreateTestMailroom(t, Options{})

	ctx, cancel := context.WithCancel(t.Context())
	s, err := Subscribe[Price](ctx, room, "scoped")
	require.NoError(t, err)
	cancel()

	_, err = s.Receive()
	require.ErrorIs(t, err, context.Canceled)

	box, err := mailbox.Lookup(t.Context(), room.Registry(), DecodedInbox[Price]("scoped"))
	require.NoError(t, err)
	require.Equal(t, s.Address(), box.Address())
}

func TestUnsubscribe(t *testing.T) {
	room := CreateTestMailroom(t, Options{})

	s, err := Subscribe[Price](t.Context(), room, "gone")
	require.NoError(t, err)
	require.NoError(t, Unsubscribe[Price](t.Context(), room, "gone"))

	_, err = s.Receive()
	require.ErrorIs(t, err, mailbox.ErrMailboxClosed)
	require.ErrorIs(t, s.Err(), mailbox.ErrMailboxClosed)
}

func TestMailroom_PointerAndValueTypesAreDistinct(t *testing.T) {
	room := CreateTestMailroom(t, Options{})

	byValue, err := Subscribe[Price](t.Context(), room, "by-value")
	require.NoError(t, err)
	byPointer, err := Subscribe[*Price](t.Context(), room, "by-pointer")
	require.NoError(t, err)
	require.NotEqual(t, byValue.Address().TypeName(), byPointer.Address().TypeName())

	raw, err := mailbox.GetMailbox(t.Context(), room.Registry(), RawInbox("by-pointer"))
	require.NoError(t, err)
	require.NoError(t, raw.Send(t.Context(), []byte(`{"symbol":"PTR","value":7}`)))

	p, err := byPointer.Receive()
	require.NoError(t, err)
	require.Equal(t, &Price{Symbol: "PTR", Value: 7}, p)

	raw, err = mailbox.GetMailbox(t.Context(), room.Registry(), RawInbox("by-value"))
	require.NoError(t, err)
	require.NoError(t, raw.Send(t.Context(), []byte(`{"symbol":"VAL","value":8}`)))

	v, err := byValue.Receive()
	require.NoError(t, err)
	require.Equal(t, Price{Symbol: "VAL", Value: 8}, v)
}

func registerLocalQuote(t *testing.T, room *Mailroom) {
	type quote struct{ Bid float64 }
	require.NoError(t, Register(room, codec.JSON[quote]()))
}

func TestMailroom_CodecOfOtherTypeWithSameName(t *testing.T) {
	room := CreateTestMailroom(t, Options{})
	registerLocalQuote(t, room)

	type quote struct{ Ask string }
	_, err := Subscribe[quote](t.Context(), room, "quotes")
	require.ErrorIs(t, err, mailbox.ErrTypeMismatch)

	err = Send(t.Context(), room, "quotes", quote{Ask: "1"})
	require.ErrorIs(t, err, mailbox.ErrTypeMismatch)
}

func TestMailroom_Closed(t *testing.T) {
	room := CreateTestMailroom(t, Options{})
	room.Close()

	_, err := Subscribe[Price](t.Context(), room, "after-close")
	require.ErrorIs(t, err, ErrClosed)
	_, err = Open(t.Context(), room, RawInbox("after-close"))
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, Send(t.Context(), room, "after-close", Price{}), ErrClosed)

	// idempotent
	room.Close()
}

func TestMailroom_ForwardersIgnoreOverflowPolicy(t *testing.T) {
	for _, policy := range []mailbox.Overflow{mailbox.OverflowDropOldest, mailbox.OverflowDisconnect} {
		t.Run(policy.String(), func(t *testing.T) {
			room := CreateTestMailroom(t, Options{}, func(o *mailbox.Options) {
				o.Capacity = 2
				o.Overflow = policy
			})

			raw, err := mailbox.GetMailbox(t.Context(), room.Registry(), RawOutbox("burst"))
			require.NoError(t, err)
			out := raw.SubscribeWith(t.Context(), mailbox.OverflowBlock)

			go func() {
				for i := range 200 {
					if err := Send(t.Context(), room, "burst", Price{Value: float64(i)}); err != nil {
						return
					}
				}
			}()

			for i := range 200 {
				payload, ok := receiveWithin(t, out, time.Second)
				require.True(t, ok, "payload %d", i)
				p, err := codec.JSON[Price]().Decode(payload)
				require.NoError(t, err)
				require.Equal(t, float64(i), p.Value)
			}
		})
	}
}
