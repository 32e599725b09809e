package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailroom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
node:
  name: n1
  peers: [n1, n2]
mailbox:
  capacity: 8
  overflow: drop-oldest
transport:
  kind: nats
  nats:
    url: nats://nats:4222
    subject_prefix: prices
membership:
  kind: nats-kv
  nats_kv:
    ttl: 5s
metrics:
  addr: ":9090"
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "n1", cfg.Node.Name)
	assert.Equal(t, []string{"n1", "n2"}, cfg.Node.Peers)
	assert.Equal(t, 8, cfg.Mailbox.Capacity)
	assert.Equal(t, "drop-oldest", cfg.Mailbox.Overflow)
	assert.Equal(t, TransportNATS, cfg.Transport.Kind)
	assert.Equal(t, "nats://nats:4222", cfg.Transport.NATS.URL)
	assert.Equal(t, "prices", cfg.Transport.NATS.SubjectPrefix)
	assert.Equal(t, MembershipNATSKV, cfg.Membership.Kind)
	assert.Equal(t, 5*time.Second, cfg.Membership.NATSKV.TTL)
	// untouched keys keep their defaults
	assert.Equal(t, "mailroom_members", cfg.Membership.NATSKV.Bucket)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)

	level, err := cfg.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "node:\n  name: from-file\n")
	t.Setenv("MAILROOM_NODE__NAME", "from-env")
	t.Setenv("MAILROOM_MEMBERSHIP__MEMBERLIST__BIND_PORT", "8000")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Node.Name)
	assert.Equal(t, 8000, cfg.Membership.Memberlist.BindPort)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"capacity", func(c *Config) { c.Mailbox.Capacity = 0 }},
		{"overflow", func(c *Config) { c.Mailbox.Overflow = "explode" }},
		{"transport kind", func(c *Config) { c.Transport.Kind = "carrier-pigeon" }},
		{"nats url", func(c *Config) { c.Transport.Kind = TransportNATS; c.Transport.NATS.URL = "" }},
		{"membership kind", func(c *Config) { c.Membership.Kind = "dns" }},
		{"nats-kv without nats", func(c *Config) { c.Membership.Kind = MembershipNATSKV }},
		{"memberlist over memory", func(c *Config) { c.Membership.Kind = MembershipMemberlist }},
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}

	require.NoError(t, Default().Validate())
}
