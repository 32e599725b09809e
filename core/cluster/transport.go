package cluster

import (
	"context"
)

type Subscription interface {
	Unsubscribe() error
}

// FrameHandler is called for every frame addressed to a listening member.
// Frames from one sender are delivered in order.
type FrameHandler = func(ctx context.Context, f Frame)

// Transport moves frames between members, addressed by member name.
type Transport interface {
	// Send delivers f to member. It returns ErrUnknownMember if the
	// transport knows the member is not reachable.
	Send(ctx context.Context, member string, f Frame) error

	// Listen delivers frames addressed to member to h until ctx is done or
	// the subscription is cancelled.
	Listen(ctx context.Context, member string, h FrameHandler) (Subscription, error)

	Close() error
}
