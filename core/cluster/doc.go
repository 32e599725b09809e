// Package cluster propagates topic interest between cluster members and
// routes published payloads to the members that asked for them.
//
// Every peer has two mailboxes on the local registry: [OpInbox] receives
// the control ops the peer sent, [OpOutbox] queues ops for it. A [Node]
// runs four tasks on top of them:
//
//   - inbound dispatch: [DeliverMessage] ops are sent into the raw inbox of
//     their topic; membership snapshots create and evict outboxes
//   - interest bookkeeping: [SubscribeTopic] and [UnsubscribeTopic] update
//     the table of members interested in each topic
//   - outbound routing: payloads published on a raw outbox are sent as
//     [DeliverMessage] to every interested member
//   - local announcement: the first decoded inbox of a topic is announced
//     to all peers, the eviction of the last one withdraws it
//
// When a member joins, its outbox is seeded with the node's current local
// interest, so late joiners do not miss earlier announcements.
//
// The [Transport] only moves [Frame] values between named members. Use
// [MemoryTransport] in tests and the NATS transport in production.
//
//	tr := cluster.NewInMemoryTransport()
//	node := cluster.NewNode(cluster.NodeOptions{
//	    Name:      "node-a",
//	    Registry:  reg,
//	    Transport: tr,
//	})
//	if err := node.Run(ctx); err != nil {
//	    return err
//	}
//	_ = node.UpdateMembership(ctx, []string{"node-a", "node-b"})
package cluster
