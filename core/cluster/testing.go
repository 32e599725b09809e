package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/mailroom-go/core/mailbox"
	"github.com/codewandler/mailroom-go/core/mailroom"
)

func CreateInMemoryTransport(t *testing.T) *MemoryTransport {
	tr := NewInMemoryTransport()
	t.Cleanup(func() {
		require.NoError(t, tr.Close())
	})
	return tr
}

// TestMember bundles the pieces of one cluster member.
type TestMember struct {
	Name     string
	Registry *mailbox.Registry
	Room     *mailroom.Mailroom
	Node     *Node
}

// CreateTestMember starts a member on tr. It knows no peers yet.
func CreateTestMember(t *testing.T, tr Transport, name string, opts ...func(*NodeOptions)) *TestMember {
	return CreateTestMemberOn(t, tr, mailbox.CreateTestRegistry(t), name, opts...)
}

// CreateTestMemberOn is CreateTestMember on an existing registry.
func CreateTestMemberOn(t *testing.T, tr Transport, reg *mailbox.Registry, name string, opts ...func(*NodeOptions)) *TestMember {
	room, err := mailroom.New(reg, mailroom.Options{})
	require.NoError(t, err)
	t.Cleanup(room.Close)

	o := NodeOptions{Name: name, Registry: reg, Transport: tr}
	for _, fn := range opts {
		fn(&o)
	}
	n := NewNode(o)
	require.NoError(t, n.Run(t.Context()))

	return &TestMember{Name: name, Registry: reg, Room: room, Node: n}
}

// CreateTestCluster starts one member per name and waits until every
// member knows all the others.
func CreateTestCluster(t *testing.T, tr Transport, names ...string) []*TestMember {
	members := make([]*TestMember, 0, len(names))
	for _, name := range names {
		members = append(members, CreateTestMember(t, tr, name))
	}
	SetTestMembership(t, members...)
	return members
}

// SetTestMembership makes exactly the given members know each other.
func SetTestMembership(t *testing.T, members ...*TestMember) {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	for _, m := range members {
		require.NoError(t, m.Node.UpdateMembership(t.Context(), names))
	}
	for _, m := range members {
		require.Eventually(t, func() bool {
			return len(m.Node.Members()) == len(members)-1
		}, time.Second, time.Millisecond)
	}
}
