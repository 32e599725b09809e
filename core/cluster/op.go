package cluster

import "github.com/codewandler/mailroom-go/core/mailbox"

var (
	KindOpInbox  = mailbox.RegisterKind("cluster.op.inbox")
	KindOpOutbox = mailbox.RegisterKind("cluster.op.outbox")
)

// OpInbox carries the ops received from member.
func OpInbox(member string) mailbox.Address[Op] {
	return mailbox.NewAddress[Op](KindOpInbox, member)
}

// OpOutbox carries the ops to be sent to member. Its existence means the
// member is known to be part of the cluster.
func OpOutbox(member string) mailbox.Address[Op] {
	return mailbox.NewAddress[Op](KindOpOutbox, member)
}

// Op is one message of the control protocol spoken between members.
type Op interface {
	OpName() string
	isOp()
}

// Op names as they appear on the wire.
const (
	OpNameSubscribe   = "subscribe"
	OpNameUnsubscribe = "unsubscribe"
	OpNameDeliver     = "deliver"
	OpNameBroadcast   = "broadcast"
	OpNameSync        = "sync"
)

type (
	// SubscribeTopic declares that the sender wants the messages of Topic.
	SubscribeTopic struct{ Topic string }

	// UnsubscribeTopic withdraws a SubscribeTopic.
	UnsubscribeTopic struct{ Topic string }

	// DeliverMessage carries one raw payload published on Topic.
	DeliverMessage struct {
		Topic   string
		Content []byte
	}

	// DeliverClusterBroadcast carries the current membership snapshot.
	DeliverClusterBroadcast struct{ Members []string }

	// SyncInterest asks the receiver to send its local topics back to the
	// sender. Members send it to peers that (re)joined their view.
	SyncInterest struct{}
)

func (SubscribeTopic) OpName() string          { return OpNameSubscribe }
func (UnsubscribeTopic) OpName() string        { return OpNameUnsubscribe }
func (DeliverMessage) OpName() string          { return OpNameDeliver }
func (DeliverClusterBroadcast) OpName() string { return OpNameBroadcast }
func (SyncInterest) OpName() string            { return OpNameSync }

func (SubscribeTopic) isOp()          {}
func (UnsubscribeTopic) isOp()        {}
func (DeliverMessage) isOp()          {}
func (DeliverClusterBroadcast) isOp() {}
func (SyncInterest) isOp()            {}
