package actor

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

type scheduleFunc func()

type Scheduler interface {
	// Schedule runs f on its own goroutine unless the scheduler's context
	// is already done. It reports whether f was started.
	Schedule(f scheduleFunc) bool
	// Wait blocks until all started tasks returned.
	Wait()
}

type SchedulerOptions struct {
	// Name labels log lines and metrics.
	Name string
	// Max caps concurrently running tasks. If 0 or negative, scheduling
	// is unlimited. Long-running forwarders need an unlimited scheduler.
	Max     int
	Log     *slog.Logger
	Metrics Metrics
}

type scheduler struct {
	ctx      context.Context
	log      *slog.Logger
	name     string
	inflight atomic.Int32
	sem      chan struct{}

	wg sync.WaitGroup

	metrics Metrics
}

// NewScheduler creates a Scheduler bound to ctx.
func NewScheduler(ctx context.Context, opts SchedulerOptions) Scheduler {
	var sem chan struct{}
	if opts.Max > 0 {
		sem = make(chan struct{}, opts.Max)
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	return &scheduler{
		ctx:     ctx,
		log:     opts.Log,
		name:    opts.Name,
		sem:     sem,
		metrics: opts.Metrics,
	}
}

func (s *scheduler) Schedule(f scheduleFunc) bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.sem != nil {
			select {
			case <-s.ctx.Done():
				return
			case s.sem <- struct{}{}:
			}
			defer func() { <-s.sem }()
		}

		s.metrics.SchedulerInflight(s.name, int(s.inflight.Add(1)))
		defer func() {
			s.metrics.SchedulerInflight(s.name, int(s.inflight.Add(-1)))
		}()

		s.runTask(f)
	}()
	return true
}

func (s *scheduler) runTask(f scheduleFunc) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.SchedulerTaskCompleted(s.name, false)
			s.log.Error("scheduled task panicked",
				slog.String("scheduler", s.name),
				slog.Any("recovered", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	f()
	s.metrics.SchedulerTaskCompleted(s.name, true)
}

func (s *scheduler) Wait() {
	s.wg.Wait()
}
