package mailbox

import "github.com/codewandler/mailroom-go/core/metrics"

// Metrics defines the metrics interface for mailboxes and the registry.
// Labels are address kinds. All methods are thread-safe.
type Metrics interface {
	MailboxCreated(kind string)
	MailboxEvicted(kind string)

	MessageSent(kind string)
	SendDuration(kind string) metrics.Timer

	// Overflow outcomes, see Overflow.
	MessageDropped(kind string)
	SubscriberDisconnected(kind string)
}

type nopMetrics struct{}

func (nopMetrics) MailboxCreated(string)             {}
func (nopMetrics) MailboxEvicted(string)             {}
func (nopMetrics) MessageSent(string)                {}
func (nopMetrics) SendDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) MessageDropped(string)             {}
func (nopMetrics) SubscriberDisconnected(string)     {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
