package cluster

// Metrics defines the metrics interface of a cluster node.
// All methods are thread-safe.
type Metrics interface {
	// Ops handed to / received from the transport, labelled by op name.
	OpSent(op string, success bool)
	OpReceived(op string)

	// UnknownPeer counts deliveries skipped because the interested member
	// has no outbox anymore.
	UnknownPeer()

	InterestTopics(n int)
	Members(n int)
}

type nopMetrics struct{}

func (nopMetrics) OpSent(string, bool) {}
func (nopMetrics) OpReceived(string)   {}
func (nopMetrics) UnknownPeer()        {}
func (nopMetrics) InterestTopics(int)  {}
func (nopMetrics) Members(int)         {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
