package ringbuffer

import (
	"context"
	"sync"
	"sync/atomic"
)

// Alerter is a one-shot shutdown signal shared by every Barrier of a ring.
type Alerter struct {
	once    sync.Once
	alerted atomic.Bool
	done    chan struct{}
}

// NewAlerter returns an Alerter that has not fired yet.
func NewAlerter() *Alerter {
	return &Alerter{done: make(chan struct{})}
}

// Alert wakes every waiter of every barrier built on this Alerter.
// It is safe to call Alert multiple times.
func (a *Alerter) Alert() {
	a.once.Do(func() {
		a.alerted.Store(true)
		close(a.done)
	})
}

// Alerted reports whether Alert was called.
func (a *Alerter) Alerted() bool {
	return a.alerted.Load()
}

// Done returns a channel closed by Alert.
func (a *Alerter) Done() <-chan struct{} {
	return a.done
}

// Barrier lets goroutines wait until a set of dependent sequences reaches a target.
type Barrier struct {
	dependents []*Sequence
	alerter    *Alerter
}

// NewBarrier returns a barrier waiting on the minimum of dependents.
// It panics when no dependent sequence or no alerter is given.
func NewBarrier(alerter *Alerter, dependents ...*Sequence) *Barrier {
	if alerter == nil {
		panic("ringbuffer: NewBarrier requires an alerter")
	}
	if len(dependents) == 0 {
		panic("ringbuffer: NewBarrier requires at least one dependent sequence")
	}
	return &Barrier{dependents: dependents, alerter: alerter}
}

// Available returns the minimum of the dependent sequences.
func (b *Barrier) Available() int64 {
	return minimum(b.dependents, InitialSequence)
}

// WaitFor blocks until every dependent sequence is at least target and
// returns the available (minimum) sequence. It returns ErrAlerted once the
// alerter fired, or the context error when ctx ends first.
func (b *Barrier) WaitFor(ctx context.Context, target int64) (int64, error) {
	for {
		if b.alerter.Alerted() {
			return b.Available(), ErrAlerted
		}
		if available := b.Available(); available >= target {
			return available, nil
		}

		changed, ok := b.lagging(target)
		if !ok {
			return b.Available(), nil
		}

		select {
		case <-changed:
		case <-b.alerter.Done():
			return b.Available(), ErrAlerted
		case <-ctx.Done():
			return b.Available(), ctx.Err()
		}
	}
}

// lagging returns the wake channel of a dependent still below target.
// The channel is taken before the value is read so an advance in between
// is never missed.
func (b *Barrier) lagging(target int64) (<-chan struct{}, bool) {
	for _, s := range b.dependents {
		changed := s.Changed()
		if s.Get() < target {
			return changed, true
		}
	}
	return nil, false
}
