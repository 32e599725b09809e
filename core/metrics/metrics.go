// Package metrics holds the backend-neutral instrument types used by the
// per-package metrics interfaces (mailbox.Metrics, cluster.Metrics, ...).
// adapters/prometheus provides the concrete implementation.
package metrics

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes:
//
//	defer m.SendDuration(kind).ObserveDuration()
type Timer interface {
	ObserveDuration()
}
