package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/codewandler/mailroom-go/core/cluster"
)

type KVMembershipConfig struct {
	Connect Connector
	Log     *slog.Logger
	// Member is the name this process announces.
	Member string
	// Bucket holds one heartbeat key per member. Default: mailroom_members.
	Bucket string
	// TTL after which a member that stopped heartbeating is gone.
	// Default: 15s. Heartbeats are sent every TTL/3.
	TTL time.Duration
}

// KVMembership derives the member list from heartbeats in a JetStream
// key-value bucket. Every member writes its own key; the bucket's max age
// removes keys of members that died.
type KVMembership struct {
	kv       jetstream.KeyValue
	closeNc  closeFunc
	log      *slog.Logger
	member   string
	interval time.Duration

	last []string
}

func NewKVMembership(ctx context.Context, cfg KVMembershipConfig) (*KVMembership, error) {
	if cfg.Member == "" {
		return nil, errors.New("member is required")
	}

	doConnect := cfg.Connect
	if doConnect == nil {
		doConnect = ConnectDefault()
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "mailroom_members"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 15 * time.Second
	}

	nc, closeNc, err := doConnect()
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		closeNc()
		return nil, err
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		TTL:     ttl,
		Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		closeNc()
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}

	return &KVMembership{
		kv:       kv,
		closeNc:  closeNc,
		log:      log.With(slog.String("membership", "nats-kv"), slog.String("member", cfg.Member)),
		member:   cfg.Member,
		interval: ttl / 3,
	}, nil
}

// Run heartbeats and pushes the member list to sink whenever it changes.
// On return the member's key is deleted so peers notice right away.
func (m *KVMembership) Run(ctx context.Context, sink cluster.MembershipSink) error {
	defer m.closeNc()
	defer m.leave()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if err := m.sync(ctx, sink); err != nil && ctx.Err() == nil {
			m.log.Warn("membership sync failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *KVMembership) sync(ctx context.Context, sink cluster.MembershipSink) error {
	if _, err := m.kv.Put(ctx, memberToken(m.member), []byte(m.member)); err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}

	members, err := m.Members(ctx)
	if err != nil {
		return err
	}
	if slices.Equal(members, m.last) {
		return nil
	}
	if err := sink.UpdateMembership(ctx, members); err != nil {
		return err
	}
	m.last = members
	m.log.Debug("membership updated", slog.Any("members", members))
	return nil
}

// Members lists the members with a live heartbeat, sorted.
func (m *KVMembership) Members(ctx context.Context) ([]string, error) {
	lister, err := m.kv.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer func() { _ = lister.Stop() }()

	var members []string
	for key := range lister.Keys() {
		entry, err := m.kv.Get(ctx, key)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get member %s: %w", key, err)
		}
		members = append(members, string(entry.Value()))
	}
	slices.Sort(members)
	return members, nil
}

func (m *KVMembership) leave() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.kv.Delete(ctx, memberToken(m.member)); err != nil {
		m.log.Warn("failed to leave", slog.Any("error", err))
	}
}
