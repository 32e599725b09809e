package mailbox

import "errors"

var (
	// Registry errors
	ErrRegistryClosed  = errors.New("mailbox registry closed")
	ErrNotFound        = errors.New("mailbox not found")
	ErrReservedAddress = errors.New("address is reserved")
	ErrTypeMismatch    = errors.New("mailbox message type mismatch")

	// Mailbox errors
	ErrMailboxClosed        = errors.New("mailbox closed")
	ErrSubscriptionClosed   = errors.New("subscription closed")
	ErrSubscriberOverloaded = errors.New("subscriber overloaded")
)
