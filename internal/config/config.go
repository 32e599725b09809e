// Package config loads the mailroomd configuration from a YAML file with an
// environment overlay.
//
// Environment variables use the MAILROOM_ prefix and a double underscore
// between sections, e.g. MAILROOM_TRANSPORT__NATS__URL=nats://nats:4222.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/codewandler/mailroom-go/core/mailbox"
)

const EnvPrefix = "MAILROOM_"

const (
	TransportMemory = "memory"
	TransportNATS   = "nats"

	MembershipStatic     = "static"
	MembershipMemberlist = "memberlist"
	MembershipNATSKV     = "nats-kv"
)

type Config struct {
	Node       NodeConfig       `koanf:"node"`
	Mailbox    MailboxConfig    `koanf:"mailbox"`
	Transport  TransportConfig  `koanf:"transport"`
	Membership MembershipConfig `koanf:"membership"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Log        LogConfig        `koanf:"log"`
}

type NodeConfig struct {
	// Name defaults to a random name when empty.
	Name string `koanf:"name"`
	// Peers is the static member list, used with membership kind static.
	Peers []string `koanf:"peers"`
}

type MailboxConfig struct {
	Capacity int    `koanf:"capacity"`
	Overflow string `koanf:"overflow"`
}

type TransportConfig struct {
	Kind string     `koanf:"kind"`
	NATS NATSConfig `koanf:"nats"`
}

type NATSConfig struct {
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

type MembershipConfig struct {
	Kind       string           `koanf:"kind"`
	Interval   time.Duration    `koanf:"interval"`
	Memberlist MemberlistConfig `koanf:"memberlist"`
	NATSKV     NATSKVConfig     `koanf:"nats_kv"`
}

type MemberlistConfig struct {
	BindAddr string   `koanf:"bind_addr"`
	BindPort int      `koanf:"bind_port"`
	Seeds    []string `koanf:"seeds"`
}

type NATSKVConfig struct {
	Bucket string        `koanf:"bucket"`
	TTL    time.Duration `koanf:"ttl"`
}

type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint; empty disables it.
	Addr string `koanf:"addr"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// Default returns the configuration used for keys absent from all sources.
func Default() Config {
	return Config{
		Mailbox: MailboxConfig{
			Capacity: mailbox.DefaultCapacity,
			Overflow: mailbox.OverflowBlock.String(),
		},
		Transport: TransportConfig{
			Kind: TransportMemory,
			NATS: NATSConfig{
				URL:           "nats://127.0.0.1:4222",
				SubjectPrefix: "mailroom",
			},
		},
		Membership: MembershipConfig{
			Kind:     MembershipStatic,
			Interval: 30 * time.Second,
			Memberlist: MemberlistConfig{
				BindAddr: "0.0.0.0",
				BindPort: 7946,
			},
			NATSKV: NATSKVConfig{
				Bucket: "mailroom_members",
				TTL:    15 * time.Second,
			},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (optional) and the environment on top of Default.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load file %s: %w", path, err)
		}
	}

	// MAILROOM_TRANSPORT__NATS__SUBJECT_PREFIX -> transport.nats.subject_prefix
	envTransformer := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformer), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Mailbox.Capacity <= 0 {
		return fmt.Errorf("mailbox.capacity must be positive, got %d", c.Mailbox.Capacity)
	}
	if _, err := mailbox.ParseOverflow(c.Mailbox.Overflow); err != nil {
		return fmt.Errorf("mailbox.overflow: %w", err)
	}

	switch c.Transport.Kind {
	case TransportMemory:
	case TransportNATS:
		if c.Transport.NATS.URL == "" {
			return fmt.Errorf("transport.nats.url is required")
		}
	default:
		return fmt.Errorf("unknown transport.kind %q", c.Transport.Kind)
	}

	switch c.Membership.Kind {
	case MembershipStatic:
	case MembershipMemberlist:
	case MembershipNATSKV:
		if c.Transport.Kind != TransportNATS {
			return fmt.Errorf("membership.kind %q requires transport.kind %q", MembershipNATSKV, TransportNATS)
		}
	default:
		return fmt.Errorf("unknown membership.kind %q", c.Membership.Kind)
	}

	if c.Transport.Kind == TransportMemory && c.Membership.Kind != MembershipStatic {
		return fmt.Errorf("transport.kind %q only supports membership.kind %q", TransportMemory, MembershipStatic)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
