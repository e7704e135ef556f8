package ringbuffer

import (
	"sync/atomic"
)

// InitialSequence is the value of every sequence before anything was published.
const InitialSequence int64 = -1

// cacheLinePad keeps hot counters on their own cache line.
type cacheLinePad struct {
	_ [56]byte
}

// Sequence is a monotonically advancing int64 that wakes waiters when it moves.
// All methods are safe for concurrent use.
type Sequence struct {
	_       cacheLinePad
	value   atomic.Int64
	_       cacheLinePad
	changed atomic.Pointer[chan struct{}]
}

// NewSequence returns a sequence starting at initial.
func NewSequence(initial int64) *Sequence {
	s := &Sequence{}
	s.value.Store(initial)
	return s
}

// Get returns the current value.
func (s *Sequence) Get() int64 {
	return s.value.Load()
}

// Set stores v and wakes every waiter.
func (s *Sequence) Set(v int64) {
	s.value.Store(v)
	s.notify()
}

// CompareAndSet swaps old for v and wakes waiters if the swap happened.
func (s *Sequence) CompareAndSet(old, v int64) bool {
	if !s.value.CompareAndSwap(old, v) {
		return false
	}
	s.notify()
	return true
}

// Changed returns a channel that is closed the next time the sequence moves.
// Callers must fetch the channel before reading the value they test, and call
// Changed again after every wakeup.
func (s *Sequence) Changed() <-chan struct{} {
	for {
		if p := s.changed.Load(); p != nil {
			return *p
		}
		ch := make(chan struct{})
		if s.changed.CompareAndSwap(nil, &ch) {
			return ch
		}
	}
}

func (s *Sequence) notify() {
	if p := s.changed.Swap(nil); p != nil {
		close(*p)
	}
}

// minimum returns the smallest value among seqs, or fallback when seqs is empty.
func minimum(seqs []*Sequence, fallback int64) int64 {
	if len(seqs) == 0 {
		return fallback
	}
	lowest := seqs[0].Get()
	for _, s := range seqs[1:] {
		lowest = min(lowest, s.Get())
	}
	return lowest
}
