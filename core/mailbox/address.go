package mailbox

import (
	"fmt"
	"sync"

	"github.com/codewandler/mailroom-go/core/reflector"
)

// Kind names a family of addresses (e.g. "topic.raw.inbox"). Kinds are
// registered once, at package init, and replace runtime type tests: an
// address matches a kind iff it was constructed with it.
type Kind string

var (
	kindsMu sync.Mutex
	kinds   = map[Kind]struct{}{}
)

// RegisterKind adds name to the kind table. It panics if name is empty or
// already registered, so two packages can never share a kind by accident.
func RegisterKind(name string) Kind {
	if name == "" {
		panic("mailbox: empty kind name")
	}
	kindsMu.Lock()
	defer kindsMu.Unlock()
	k := Kind(name)
	if _, ok := kinds[k]; ok {
		panic(fmt.Sprintf("mailbox: kind %q registered twice", name))
	}
	kinds[k] = struct{}{}
	return k
}

// Matches reports whether addr is of kind k.
func (k Kind) Matches(addr AnyAddress) bool {
	return addr != nil && addr.Kind() == k
}

func (k Kind) String() string { return string(k) }

// AnyAddress is the type-erased view of an Address, used wherever mailboxes
// of different message types are handled together.
type AnyAddress interface {
	Kind() Kind
	// Name is the kind-specific attribute: a topic or member name.
	Name() string
	// TypeName is the registered name of the message type.
	TypeName() string
	// String is the stable identity of the address.
	String() string
}

// Address identifies a mailbox carrying messages of type M. Addresses are
// comparable values; equal addresses always resolve to the same Mailbox.
type Address[M any] struct {
	kind Kind
	name string
	typ  string
}

// NewAddress builds an address of kind with the given attribute.
func NewAddress[M any](kind Kind, name string) Address[M] {
	return Address[M]{kind: kind, name: name, typ: reflector.TypeName[M]()}
}

func (a Address[M]) Kind() Kind       { return a.kind }
func (a Address[M]) Name() string     { return a.name }
func (a Address[M]) TypeName() string { return a.typ }

func (a Address[M]) String() string {
	return fmt.Sprintf("%s(%s)<%s>", a.kind, a.name, a.typ)
}

var _ AnyAddress = Address[any]{}
