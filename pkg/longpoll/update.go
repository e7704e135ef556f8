package longpoll

// NoSequence is what a client that has received nothing yet reports as its
// last sequence. Any negative value is treated the same way.
const NoSequence int64 = -1

// Kind tells what an Update carries.
type Kind int

const (
	// KindNone means nothing new is visible for the client.
	KindNone Kind = iota
	// KindFullUpdate carries the merged state of every notification so far.
	KindFullUpdate
	// KindNotifications carries the missed notifications, oldest first.
	KindNotifications
	// KindMerged carries the missed notifications merged into one value.
	KindMerged
)

// String returns the lower-case name used on the wire.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindFullUpdate:
		return "full"
	case KindNotifications:
		return "notifications"
	case KindMerged:
		return "merged"
	default:
		return "unknown"
	}
}

// Update is the answer to "what changed since sequence N".
type Update[T any] struct {
	Kind Kind
	// Sequence is the highest sequence the update represents. Clients send it
	// back as their last received sequence. For KindFullUpdate it is the
	// aggregator sequence read after taking the aggregate; the aggregate is
	// shared and may already reflect later notifications, which the client
	// then receives again. Payloads whose Combine is idempotent, such as
	// last-write-wins maps, are unaffected.
	Sequence int64
	// Values holds one element for KindFullUpdate and KindMerged, the ordered
	// notifications for KindNotifications and nothing for KindNone.
	Values []T
}

// Empty reports whether the update carries nothing.
func (u Update[T]) Empty() bool {
	return u.Kind == KindNone
}
