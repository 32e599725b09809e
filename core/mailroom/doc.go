// Package mailroom is the topic-level API on top of the mailbox registry.
//
// A topic is backed by four mailboxes. Payloads arriving from the cluster
// land in RawInbox(topic) and are decoded into DecodedInbox[E](topic) for
// every E a local consumer asked for. Values sent to EncodedOutbox[E](topic)
// are encoded into RawOutbox(topic), from where the cluster node routes
// them to interested members. The codec operators doing this are started
// by registry observers when a typed mailbox is created, so publishers and
// consumers never deal with bytes.
//
//	room, _ := mailroom.New(reg, mailroom.Options{})
//	s, _ := mailroom.Subscribe[Price](ctx, room, "prices")
//	for p := range s.Messages() {
//		...
//	}
package mailroom
