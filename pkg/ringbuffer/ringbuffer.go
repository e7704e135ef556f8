package ringbuffer

import (
	"context"
	"fmt"
	"sync/atomic"
)

// entry is the immutable content of a slot. Slots are swapped atomically so a
// reader sees either the previous occupant or the new one, never a mix.
type entry[T any] struct {
	seq   int64
	value T
}

// RingBuffer is a fixed-capacity ring of sequenced values that any number of
// producers may publish into concurrently.
type RingBuffer[T any] struct {
	size    int64
	mask    int64
	slots   []atomic.Pointer[entry[T]]
	alerter *Alerter

	_       cacheLinePad
	claimed atomic.Int64
	_       cacheLinePad

	cursor *Sequence

	gating        []*Sequence
	gatingBarrier *Barrier
}

// New returns a ring with the given capacity, which must be a power of two.
// The alerter is shared with every barrier created by the ring.
func New[T any](capacity int, alerter *Alerter) (*RingBuffer[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	if alerter == nil {
		alerter = NewAlerter()
	}

	r := &RingBuffer[T]{
		size:    int64(capacity),
		mask:    int64(capacity - 1),
		slots:   make([]atomic.Pointer[entry[T]], capacity),
		alerter: alerter,
		cursor:  NewSequence(InitialSequence),
	}
	r.claimed.Store(InitialSequence)
	r.gatingBarrier = NewBarrier(alerter, r.cursor)
	return r, nil
}

// SetGatingSequences sets the sequences that must pass a slot before it can
// be reused. It must be called before the first claim.
func (r *RingBuffer[T]) SetGatingSequences(seqs ...*Sequence) {
	r.gating = seqs
	if len(seqs) == 0 {
		r.gatingBarrier = NewBarrier(r.alerter, r.cursor)
		return
	}
	r.gatingBarrier = NewBarrier(r.alerter, seqs...)
}

// NewBarrier returns a barrier on dependents, or on the cursor when none are given.
func (r *RingBuffer[T]) NewBarrier(dependents ...*Sequence) *Barrier {
	if len(dependents) == 0 {
		return NewBarrier(r.alerter, r.cursor)
	}
	return NewBarrier(r.alerter, dependents...)
}

// Capacity returns the number of slots.
func (r *RingBuffer[T]) Capacity() int64 {
	return r.size
}

// Cursor returns the sequence of the highest contiguously published value.
func (r *RingBuffer[T]) Cursor() *Sequence {
	return r.cursor
}

// Claimed returns the highest sequence handed out by Next.
func (r *RingBuffer[T]) Claimed() int64 {
	return r.claimed.Load()
}

// RemainingCapacity returns how many sequences can be claimed without waiting.
func (r *RingBuffer[T]) RemainingCapacity() int64 {
	consumed := minimum(r.gating, r.cursor.Get())
	return r.size - (r.claimed.Load() - consumed)
}

// Next claims the next sequence. When the slot for that sequence still holds a
// value the gating sequences have not processed, Next parks until they do.
// Nothing is claimed when Next returns an error, so giving up never leaves a
// hole in the sequence.
func (r *RingBuffer[T]) Next(ctx context.Context) (int64, error) {
	for {
		if r.alerter.Alerted() {
			return InitialSequence, ErrAlerted
		}

		current := r.claimed.Load()
		next := current + 1
		wrapPoint := next - r.size

		if wrapPoint > minimum(r.gating, r.cursor.Get()) {
			if _, err := r.gatingBarrier.WaitFor(ctx, wrapPoint); err != nil {
				return InitialSequence, err
			}
			continue
		}

		if r.claimed.CompareAndSwap(current, next) {
			return next, nil
		}
	}
}

// Publish stores value for a sequence obtained from Next and advances the
// cursor over every contiguous published sequence. Publishing over a slot the
// gating sequences have not released is a programming error and panics.
func (r *RingBuffer[T]) Publish(seq int64, value T) {
	if wrapPoint := seq - r.size; wrapPoint > minimum(r.gating, r.cursor.Get()) {
		panic(fmt.Sprintf("ringbuffer: publishing sequence %d would overwrite unprocessed sequence %d", seq, wrapPoint))
	}

	r.slots[seq&r.mask].Store(&entry[T]{seq: seq, value: value})
	r.advanceCursor()
}

// advanceCursor moves the cursor forward while the next slot holds the next
// sequence. Any producer may finish the work of a slower one.
func (r *RingBuffer[T]) advanceCursor() {
	for {
		current := r.cursor.Get()
		next := current + 1
		e := r.slots[next&r.mask].Load()
		if e == nil || e.seq != next {
			return
		}
		r.cursor.CompareAndSet(current, next)
	}
}

// Get returns the value published at seq. It reports false when seq has not
// been published yet or its slot has since been reused by a later sequence.
func (r *RingBuffer[T]) Get(seq int64) (T, bool) {
	var zero T
	if seq < 0 || seq > r.cursor.Get() {
		return zero, false
	}
	e := r.slots[seq&r.mask].Load()
	if e == nil || e.seq != seq {
		return zero, false
	}
	return e.value, true
}
