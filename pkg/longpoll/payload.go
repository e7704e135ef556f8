package longpoll

import "sync/atomic"

// Manager is the capability for opaque payloads: notifications are deltas that
// are merged into one state. Catch-up responses built from several
// notifications are merged into a single value.
//
// The aggregate returned by NewInstance is written by the aggregator while
// readers serialise it, so Combine must leave the target readable at any time.
type Manager[T any] interface {
	// NewInstance returns an empty value.
	NewInstance() T
	// Combine merges add into target.
	Combine(target, add T)
	// Set replaces the content of target with value.
	Set(target, value T)
}

// Sequenced is implemented by self-describing payloads that carry the sequence
// the channel assigned to them.
type Sequenced interface {
	SetSequence(seq int64)
	Sequence() int64
}

// FullUpdateBuilder receives every notification of a sequenced channel, in
// order, and maintains one notification representing the latest state. The
// full update is read concurrently with OnNotification and must be safe for it.
type FullUpdateBuilder[T any] interface {
	OnNotification(notification T, seq int64, endOfBatch bool)
	FullUpdate() T
}

// BaseNotification implements Sequenced and is meant to be embedded:
//
//	type PriceChanged struct {
//		longpoll.BaseNotification
//		Symbol string `json:"symbol"`
//		Price  int64  `json:"price"`
//	}
type BaseNotification struct {
	seq atomic.Int64
}

// SetSequence records the sequence assigned at publish time.
func (n *BaseNotification) SetSequence(seq int64) {
	n.seq.Store(seq)
}

// Sequence returns the assigned sequence.
func (n *BaseNotification) Sequence() int64 {
	return n.seq.Load()
}

// strategy binds a payload capability to the channel.
type strategy[T any] interface {
	// prepare turns a published value into what is stored in the ring.
	prepare(value T, seq int64) T
	// fold is called by the aggregator for every sequence, in order.
	fold(value T, seq int64, endOfBatch bool)
	fullUpdate() T
	// collect shapes the notifications of a catch-up range.
	collect(values []T) (Kind, []T)
}

// combining stores a private copy of each notification and merges catch-up
// ranges into a fresh instance, so neither the caller nor readers can mutate
// what sits in the ring.
type combining[T any] struct {
	manager   Manager[T]
	aggregate T
}

func newCombining[T any](m Manager[T]) *combining[T] {
	return &combining[T]{manager: m, aggregate: m.NewInstance()}
}

func (c *combining[T]) prepare(value T, _ int64) T {
	stored := c.manager.NewInstance()
	c.manager.Set(stored, value)
	return stored
}

func (c *combining[T]) fold(value T, _ int64, _ bool) {
	c.manager.Combine(c.aggregate, value)
}

func (c *combining[T]) fullUpdate() T {
	return c.aggregate
}

func (c *combining[T]) collect(values []T) (Kind, []T) {
	merged := c.manager.NewInstance()
	c.manager.Set(merged, values[0])
	for _, v := range values[1:] {
		c.manager.Combine(merged, v)
	}
	return KindMerged, []T{merged}
}

// sequencing delivers notifications verbatim after stamping their sequence.
type sequencing[T Sequenced] struct {
	builder FullUpdateBuilder[T]
}

func (s *sequencing[T]) prepare(value T, seq int64) T {
	value.SetSequence(seq)
	return value
}

func (s *sequencing[T]) fold(value T, seq int64, endOfBatch bool) {
	s.builder.OnNotification(value, seq, endOfBatch)
}

func (s *sequencing[T]) fullUpdate() T {
	return s.builder.FullUpdate()
}

func (s *sequencing[T]) collect(values []T) (Kind, []T) {
	return KindNotifications, values
}
