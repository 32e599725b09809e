package mailroom

// Direction labels for Metrics.CodecCompleted.
const (
	DirectionDecode = "decode"
	DirectionEncode = "encode"
)

// Metrics defines the metrics interface of the codec operators.
type Metrics interface {
	CodecCompleted(direction string, success bool)
}

type nopMetrics struct{}

func (nopMetrics) CodecCompleted(string, bool) {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
