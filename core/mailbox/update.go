package mailbox

// KindUpdate is the kind of the reserved registry lifecycle address.
var KindUpdate = RegisterKind("mailbox.update")

// UpdateAddress is the singleton address on which the registry announces
// mailbox creation and eviction.
var UpdateAddress = NewAddress[Update](KindUpdate, "registry")

type UpdateType int

const (
	UpdateCreated UpdateType = iota + 1
	UpdateEvicted
)

func (t UpdateType) String() string {
	switch t {
	case UpdateCreated:
		return "created"
	case UpdateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Update is a lifecycle event about one mailbox.
type Update struct {
	Type    UpdateType
	Address AnyAddress
}

func (u Update) Created() bool { return u.Type == UpdateCreated }
func (u Update) Evicted() bool { return u.Type == UpdateEvicted }
