// Package memberlist derives cluster membership from hashicorp/memberlist
// gossip. Member names are the memberlist node names.
package memberlist

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/codewandler/mailroom-go/core/cluster"
)

type Config struct {
	// Name is the member name; it must be unique in the cluster.
	Name string
	// BindAddr and BindPort are the gossip listen address. Port 0 picks a
	// free port, see Port.
	BindAddr string
	BindPort int
	// Seeds are host:port gossip addresses of existing members.
	Seeds []string
	// Local uses memberlist's loopback timings (fast failure detection).
	Local bool
	Log   *slog.Logger
	// ResyncInterval re-publishes the member list even without changes.
	// Default: 30s.
	ResyncInterval time.Duration
}

// Membership tracks the gossip member list and publishes it to a sink.
type Membership struct {
	ml      *memberlist.Memberlist
	log     *slog.Logger
	changed chan struct{}
	resync  time.Duration
}

func New(cfg Config) (*Membership, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("memberlist: name is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = 30 * time.Second
	}

	mlConfig := memberlist.DefaultLANConfig()
	if cfg.Local {
		mlConfig = memberlist.DefaultLocalConfig()
	}
	mlConfig.Name = cfg.Name
	if cfg.BindAddr != "" {
		mlConfig.BindAddr = cfg.BindAddr
	}
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort

	log := cfg.Log.With(slog.String("membership", "memberlist"), slog.String("member", cfg.Name))
	// memberlist's own logger goes through slog
	mlConfig.LogOutput = &slogWriter{logger: log}

	m := &Membership{
		log:     log,
		changed: make(chan struct{}, 1),
		resync:  cfg.ResyncInterval,
	}
	mlConfig.Events = &eventDelegate{m: m}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("create memberlist: %w", err)
	}
	m.ml = ml

	if len(cfg.Seeds) > 0 {
		n, err := ml.Join(cfg.Seeds)
		if err != nil {
			_ = ml.Shutdown()
			return nil, fmt.Errorf("join seed nodes: %w", err)
		}
		log.Info("joined cluster", slog.Any("seeds", cfg.Seeds), slog.Int("joined_count", n))
	} else {
		log.Info("started discovery (bootstrap mode)")
	}

	return m, nil
}

// Port is the gossip port actually bound.
func (m *Membership) Port() int { return int(m.ml.LocalNode().Port) }

// Members returns the names of all live members, including this one.
func (m *Membership) Members() []string {
	nodes := m.ml.Members()
	names := make([]string, 0, len(nodes))
	for _, n := range nodes {
		names = append(names, n.Name)
	}
	slices.Sort(names)
	return names
}

// Run publishes the member list to sink on every change until ctx is done,
// then leaves the cluster.
func (m *Membership) Run(ctx context.Context, sink cluster.MembershipSink) error {
	defer m.shutdown()

	ticker := time.NewTicker(m.resync)
	defer ticker.Stop()

	for {
		if err := sink.UpdateMembership(ctx, m.Members()); err != nil && ctx.Err() == nil {
			m.log.Warn("failed to publish membership", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-m.changed:
		case <-ticker.C:
		}
	}
}

func (m *Membership) shutdown() {
	if err := m.ml.Leave(time.Second); err != nil {
		m.log.Warn("failed to leave cluster", slog.Any("error", err))
	}
	if err := m.ml.Shutdown(); err != nil {
		m.log.Warn("failed to shut down memberlist", slog.Any("error", err))
	}
	m.log.Info("left cluster")
}

func (m *Membership) notify() {
	select {
	case m.changed <- struct{}{}:
	default:
	}
}

// eventDelegate implements memberlist.EventDelegate.
type eventDelegate struct {
	m *Membership
}

func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	e.m.log.Info("member joined", slog.String("peer", node.Name), slog.String("addr", node.Address()))
	e.m.notify()
}

func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	e.m.log.Info("member left", slog.String("peer", node.Name))
	e.m.notify()
}

func (e *eventDelegate) NotifyUpdate(*memberlist.Node) {}

// slogWriter adapts slog.Logger to io.Writer for memberlist.
type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (n int, err error) {
	w.logger.Debug(string(p))
	return len(p), nil
}
