// Package mailbox implements typed addresses, broadcast mailboxes and the
// registry that creates and announces them.
//
// # Addresses
//
// An [Address] is a comparable value made of a [Kind], a name (topic or
// member) and the registered name of its message type. Kinds are declared
// once with [RegisterKind]; [Kind.Matches] is the only type test the
// registry performs.
//
//	var KindPrices = mailbox.RegisterKind("prices")
//	addr := mailbox.NewAddress[Price](KindPrices, "eu")
//
// # Mailboxes
//
// A [Mailbox] broadcasts every [Mailbox.Send] to the subscriptions open at
// that moment. Subscriptions have bounded queues; the registry's [Overflow]
// policy decides whether a full queue blocks the sender (default), drops
// the oldest envelope, or disconnects the subscriber.
//
// # Registry
//
// [GetMailbox] returns the one mailbox for an address, creating it if
// needed. Creation and eviction are announced twice: synchronously to
// observers registered with [Registry.Observe], then as an [Update] on
// [UpdateAddress]. [FanOut] sends to every mailbox of a kind, [FanIn]
// merges all mailboxes of a kind, including ones created later.
package mailbox
