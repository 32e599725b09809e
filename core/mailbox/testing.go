package mailbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// CreateTestRegistry returns a registry bound to the test's lifetime.
func CreateTestRegistry(t *testing.T, opts ...func(*Options)) *Registry {
	o := Options{Context: t.Context()}
	for _, fn := range opts {
		fn(&o)
	}
	r := NewRegistry(o)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})
	return r
}
