package ringbuffer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// Handler consumes published values in sequence order.
type Handler[T any] interface {
	OnEvent(value T, seq int64, endOfBatch bool)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc[T any] func(value T, seq int64, endOfBatch bool)

// OnEvent calls f.
func (f HandlerFunc[T]) OnEvent(value T, seq int64, endOfBatch bool) {
	f(value, seq, endOfBatch)
}

// ProcessorOption configures a BatchProcessor.
type ProcessorOption func(*processorConfig)

type processorConfig struct {
	onPanic func(seq int64, recovered any)
}

// WithPanicHandler recovers panics raised by the handler and reports them to fn.
// The processor then moves on to the next sequence. Without it a handler
// panic terminates the process.
func WithPanicHandler(fn func(seq int64, recovered any)) ProcessorOption {
	return func(c *processorConfig) { c.onPanic = fn }
}

// BatchProcessor is a single consumer that hands every published value to a
// Handler exactly once, in sequence order, and exposes how far it got.
type BatchProcessor[T any] struct {
	ring     *RingBuffer[T]
	barrier  *Barrier
	sequence *Sequence
	handler  Handler[T]
	onPanic  func(seq int64, recovered any)
	running  atomic.Bool
}

// NewBatchProcessor returns a processor reading ring through a barrier on its cursor.
func NewBatchProcessor[T any](ring *RingBuffer[T], handler Handler[T], opts ...ProcessorOption) *BatchProcessor[T] {
	cfg := processorConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &BatchProcessor[T]{
		ring:     ring,
		barrier:  ring.NewBarrier(),
		sequence: NewSequence(InitialSequence),
		handler:  handler,
		onPanic:  cfg.onPanic,
	}
}

// Sequence returns the highest sequence the processor has handled.
// It is meant to be used as a gating sequence of the ring.
func (p *BatchProcessor[T]) Sequence() *Sequence {
	return p.sequence
}

// Run consumes values until the ring's alerter fires, in which case it
// returns ErrAlerted, or ctx ends. Run must not be called concurrently.
func (p *BatchProcessor[T]) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("ringbuffer: processor is already running")
	}
	defer p.running.Store(false)

	next := p.sequence.Get() + 1
	for {
		available, err := p.barrier.WaitFor(ctx, next)
		if err != nil {
			return err
		}

		for ; next <= available; next++ {
			value, ok := p.ring.Get(next)
			if !ok {
				panic(fmt.Sprintf("ringbuffer: sequence %d was overwritten before it was processed", next))
			}
			p.handle(value, next, next == available)
			p.sequence.Set(next)
		}
	}
}

func (p *BatchProcessor[T]) handle(value T, seq int64, endOfBatch bool) {
	if p.onPanic != nil {
		defer func() {
			if r := recover(); r != nil {
				p.onPanic(seq, r)
			}
		}()
	}
	p.handler.OnEvent(value, seq, endOfBatch)
}
