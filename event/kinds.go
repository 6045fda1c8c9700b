package event

// Kind is the lifecycle stage an event reports.
type Kind int

const (
	BeforeCreate Kind = iota
	Create
	BeforeModify
	Modify
	BeforeDelete
	Delete
	PreReceive
	PostReceive
)

var kindNames = [...]string{
	BeforeCreate: "BEFORE_CREATE",
	Create:       "CREATE",
	BeforeModify: "BEFORE_MODIFY",
	Modify:       "MODIFY",
	BeforeDelete: "BEFORE_DELETE",
	Delete:       "DELETE",
	PreReceive:   "PRE_RECEIVE",
	PostReceive:  "POST_RECEIVE",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// IsPre reports whether the kind is delivered before the change is committed
// and may be vetoed.
func (k Kind) IsPre() bool {
	switch k {
	case BeforeCreate, BeforeModify, BeforeDelete, PreReceive:
		return true
	}
	return false
}

// Kinded is implemented by every event payload.
type Kinded interface {
	EventKind() Kind
}
