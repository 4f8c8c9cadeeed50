package core

// Status is the delivery lifecycle state of a chat message.
type Status string

const (
	StatusSending   Status = "sending"
	StatusQueued    Status = "queued"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

// priorities orders statuses for conflict resolution. A write only applies
// when its status outranks the current one; failed and queued sit at the
// bottom so any later successful transition escapes them, while a duplicate
// or stale write never lands.
var priorities = map[Status]int{
	StatusFailed:    0,
	StatusQueued:    1,
	StatusSending:   2,
	StatusSent:      3,
	StatusDelivered: 4,
	StatusRead:      5,
}

// Priority returns the conflict-resolution rank of s, or -1 for an unknown
// status.
func (s Status) Priority() int {
	p, ok := priorities[s]
	if !ok {
		return -1
	}
	return p
}

// Valid reports whether s is one of the closed set of delivery statuses.
func (s Status) Valid() bool {
	_, ok := priorities[s]
	return ok
}

func (s Status) String() string { return string(s) }

// Icon returns the badge hint the chat UI renders for s.
func (s Status) Icon() string {
	switch s {
	case StatusSending, StatusQueued:
		return "clock"
	case StatusSent:
		return "check"
	case StatusDelivered:
		return "check-double"
	case StatusRead:
		return "check-double-blue"
	case StatusFailed:
		return "warning"
	default:
		return ""
	}
}

// AllStatuses returns every status in ascending priority order.
func AllStatuses() []Status {
	return []Status{StatusFailed, StatusQueued, StatusSending, StatusSent, StatusDelivered, StatusRead}
}
