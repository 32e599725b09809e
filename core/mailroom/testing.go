package mailroom

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/mailroom-go/core/mailbox"
)

// CreateTestMailroom returns a mailroom on a fresh test registry.
func CreateTestMailroom(t *testing.T, opts Options, regOpts ...func(*mailbox.Options)) *Mailroom {
	reg := mailbox.CreateTestRegistry(t, regOpts...)
	room, err := New(reg, opts)
	require.NoError(t, err)
	t.Cleanup(room.Close)
	return room
}
