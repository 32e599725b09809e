package actor

// Metrics instruments a Scheduler. All methods are thread-safe.
type Metrics interface {
	SchedulerInflight(scheduler string, count int)
	SchedulerTaskCompleted(scheduler string, success bool)
}

type nopMetrics struct{}

func (nopMetrics) SchedulerInflight(string, int)       {}
func (nopMetrics) SchedulerTaskCompleted(string, bool) {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
