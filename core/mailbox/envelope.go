package mailbox

// Envelope pairs a message with the address it was sent to.
type Envelope[M any] struct {
	Address Address[M]
	Message M
}
