package cluster

import (
	"context"
	"log/slog"
	"time"
)

// MembershipSink receives membership snapshots. *Node implements it.
type MembershipSink interface {
	UpdateMembership(ctx context.Context, members []string) error
}

var _ MembershipSink = (*Node)(nil)

// StaticMembership publishes a fixed member list. It re-publishes it on
// every tick so a restarted sink picks it up again.
type StaticMembership struct {
	Members  []string
	Interval time.Duration
	Log      *slog.Logger
}

// Run publishes the member list to sink until ctx is done.
func (s StaticMembership) Run(ctx context.Context, sink MembershipSink) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := sink.UpdateMembership(ctx, s.Members); err != nil {
			log.Warn("failed to publish static membership", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
