package mailroom

import "github.com/codewandler/mailroom-go/core/mailbox"

// A topic is backed by four mailboxes: raw and typed, each in both
// directions.
var (
	KindRawInbox      = mailbox.RegisterKind("topic.raw.inbox")
	KindRawOutbox     = mailbox.RegisterKind("topic.raw.outbox")
	KindDecodedInbox  = mailbox.RegisterKind("topic.decoded.inbox")
	KindEncodedOutbox = mailbox.RegisterKind("topic.encoded.outbox")
)

// RawInbox carries undecoded payloads received for topic.
func RawInbox(topic string) mailbox.Address[[]byte] {
	return mailbox.NewAddress[[]byte](KindRawInbox, topic)
}

// RawOutbox carries encoded payloads published locally on topic.
func RawOutbox(topic string) mailbox.Address[[]byte] {
	return mailbox.NewAddress[[]byte](KindRawOutbox, topic)
}

// DecodedInbox carries values of E decoded from RawInbox(topic). Creating
// it declares local interest in topic.
func DecodedInbox[E any](topic string) mailbox.Address[E] {
	return mailbox.NewAddress[E](KindDecodedInbox, topic)
}

// EncodedOutbox carries values of E that are encoded into RawOutbox(topic).
func EncodedOutbox[E any](topic string) mailbox.Address[E] {
	return mailbox.NewAddress[E](KindEncodedOutbox, topic)
}
