package longpoll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajsutton/disruptedLongPoll/pkg/logger"
	"github.com/ajsutton/disruptedLongPoll/pkg/ringbuffer"
)

// State is the lifecycle state of a Channel.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Channel is a sequenced notification channel. Producers publish
// notifications into a bounded ring, a background aggregator folds each of
// them into the full update, and long-poll requests either catch up from the
// ring, receive the full update or park until the next sequence is visible.
//
// All methods are safe for concurrent use.
type Channel[T any] struct {
	maxUpdatesToSend int64
	opts             *options
	logger           *slog.Logger
	strategy         strategy[T]

	alerter    *ringbuffer.Alerter
	ring       *ringbuffer.RingBuffer[T]
	aggregator *ringbuffer.BatchProcessor[T]
	visible    *ringbuffer.Sequence
	aggregated *ringbuffer.Barrier
	waits      *waitRegistry

	state   atomic.Int32
	wg      sync.WaitGroup
	stopped chan struct{}
}

// NewCombining returns a channel for opaque payloads merged through m.
// Catch-up responses are merged into one value.
func NewCombining[T any](m Manager[T], cfg Config, opts ...Option) (*Channel[T], error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil manager", ErrInvalidConfiguration)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newChannel[T](newCombining(m), cfg, opts)
}

// NewSequenced returns a channel for self-sequencing payloads. Catch-up
// responses list the notifications verbatim and b maintains the full update.
func NewSequenced[T Sequenced](b FullUpdateBuilder[T], cfg Config, opts ...Option) (*Channel[T], error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil full update builder", ErrInvalidConfiguration)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return newChannel[T](&sequencing[T]{builder: b}, cfg, opts)
}

func newChannel[T any](s strategy[T], cfg Config, opts []Option) (*Channel[T], error) {
	o := defaultOptions(cfg)
	for _, opt := range opts {
		opt(o)
	}
	log := o.logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.With(logger.Component("longpoll"))

	alerter := ringbuffer.NewAlerter()
	ring, err := ringbuffer.New[T](cfg.Capacity, alerter)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfiguration, err)
	}

	c := &Channel[T]{
		maxUpdatesToSend: cfg.MaxUpdatesToSend,
		opts:             o,
		logger:           log,
		strategy:         s,
		alerter:          alerter,
		ring:             ring,
		stopped:          make(chan struct{}),
	}

	c.aggregator = ringbuffer.NewBatchProcessor(ring,
		ringbuffer.HandlerFunc[T](s.fold),
		ringbuffer.WithPanicHandler(c.onFoldPanic),
	)
	ring.SetGatingSequences(c.aggregator.Sequence())
	c.aggregated = ring.NewBarrier(c.aggregator.Sequence())

	c.visible = c.aggregator.Sequence()
	if o.visibility == VisibilityPublished {
		c.visible = ring.Cursor()
	}
	c.waits = newWaitRegistry(c.visible, alerter, o, log)

	return c, nil
}

// Start launches the aggregator and the wait dispatcher.
func (c *Channel[T]) Start(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		if c.State() == StateRunning {
			return ErrAlreadyStarted
		}
		return ErrClosed
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.aggregate()
	}()
	c.waits.start(&c.wg)

	go func() {
		c.wg.Wait()
		c.state.Store(int32(StateStopped))
		close(c.stopped)
	}()

	c.logger.InfoContext(ctx, "notification channel started",
		slog.Int64("capacity", c.ring.Capacity()),
		slog.Int64("max_updates_to_send", c.maxUpdatesToSend),
		slog.Int("dispatch_workers", c.opts.dispatchWorkers))
	return nil
}

// Run returns a function suitable for errgroup: it starts the channel, waits
// for ctx to end and shuts the channel down.
func (c *Channel[T]) Run(ctx context.Context) func() error {
	return func() error {
		if err := c.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		if !c.Shutdown(c.opts.shutdownTimeout) {
			return fmt.Errorf("longpoll: shutdown did not complete within %s", c.opts.shutdownTimeout)
		}
		return nil
	}
}

// aggregate is the body of the aggregator goroutine.
func (c *Channel[T]) aggregate() {
	err := c.aggregator.Run(context.Background())
	if err != nil && !errors.Is(err, ringbuffer.ErrAlerted) {
		c.logger.Error("aggregator stopped unexpectedly", logger.Error(err))
		return
	}
	c.logger.Debug("aggregator stopped", logger.Sequence(c.aggregator.Sequence().Get()))
}

func (c *Channel[T]) onFoldPanic(seq int64, recovered any) {
	c.logger.Error("full update aggregation panicked",
		logger.Sequence(seq),
		logger.Error(fmt.Errorf("panic: %v", recovered)))
}

// Publish assigns the next sequence to value and makes it visible. It only
// blocks while the ring is full of notifications the aggregator has not
// processed yet. The caller must not modify value afterwards.
func (c *Channel[T]) Publish(ctx context.Context, value T) (int64, error) {
	if c.State() != StateRunning {
		return NoSequence, ErrClosed
	}

	seq, err := c.ring.Next(ctx)
	if err != nil {
		if errors.Is(err, ringbuffer.ErrAlerted) {
			return NoSequence, ErrCancelled
		}
		return NoSequence, err
	}

	c.ring.Publish(seq, c.strategy.prepare(value, seq))
	return seq, nil
}

// NotificationsSince returns what a client that last received
// lastSequenceReceived is missing: the full update when it fell more than
// MaxUpdatesToSend behind, the notifications after lastSequenceReceived, or an
// empty update. The catch-up range is (lastSequenceReceived, cursor], so the
// notification the client already holds is never sent again.
func (c *Channel[T]) NotificationsSince(lastSequenceReceived int64) Update[T] {
	last := max(lastSequenceReceived, NoSequence)
	cursor := c.visible.Get()

	if cursor < 0 || cursor <= last {
		return Update[T]{Kind: KindNone, Sequence: cursor}
	}
	if last+c.maxUpdatesToSend < cursor {
		return c.fullUpdate()
	}

	values := make([]T, 0, cursor-last)
	for seq := last + 1; seq <= cursor; seq++ {
		v, ok := c.ring.Get(seq)
		if !ok {
			c.logger.Debug("catch-up range overwritten, sending full update",
				logger.Sequence(seq), logger.Cursor(cursor))
			return c.fullUpdate()
		}
		values = append(values, v)
	}

	kind, values := c.strategy.collect(values)
	return Update[T]{Kind: kind, Sequence: cursor, Values: values}
}

// fullUpdate reports the aggregator sequence read after taking the aggregate,
// never the cursor: the aggregate may already hold notifications past it.
func (c *Channel[T]) fullUpdate() Update[T] {
	value, seq := c.FullUpdate()
	return Update[T]{
		Kind:     KindFullUpdate,
		Sequence: seq,
		Values:   []T{value},
	}
}

// FullUpdate returns the aggregate and the aggregator sequence observed after
// taking it. The aggregate is the live object, so it may also reflect
// notifications folded after that sequence.
func (c *Channel[T]) FullUpdate() (T, int64) {
	value := c.strategy.fullUpdate()
	return value, c.aggregator.Sequence().Get()
}

// NotifyOnNext calls onReady once, from a dispatch worker, when the sequence
// after lastSequenceReceived becomes visible. It never blocks. If the channel
// shuts down first, onReady receives ErrCancelled; after shutdown has begun it
// receives ErrCancelled right away. No sequence follows math.MaxInt64, so a
// wait registered for it only ends through Cancel or shutdown.
func (c *Channel[T]) NotifyOnNext(lastSequenceReceived int64, onReady func(error)) *PendingWait {
	if onReady == nil {
		panic("longpoll: NotifyOnNext requires a callback")
	}
	if lastSequenceReceived == math.MaxInt64 {
		return c.waits.register(unreachable, onReady)
	}
	last := max(lastSequenceReceived, NoSequence)
	return c.waits.register(last+1, onReady)
}

// WaitForNext blocks until the sequence after lastSequenceReceived is visible.
// It returns nil when it is, ErrCancelled when the channel shuts down, or the
// context error.
func (c *Channel[T]) WaitForNext(ctx context.Context, lastSequenceReceived int64) error {
	done := make(chan error, 1)
	w := c.NotifyOnNext(lastSequenceReceived, func(err error) { done <- err })

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if w.Cancel() {
			return ctx.Err()
		}
		// Already handed to a worker; the callback is on its way.
		return <-done
	}
}

// AwaitAggregated blocks until the aggregator has folded seq into the full update.
func (c *Channel[T]) AwaitAggregated(ctx context.Context, seq int64) error {
	if c.Aggregated() >= seq {
		return nil
	}
	_, err := c.aggregated.WaitFor(ctx, seq)
	if errors.Is(err, ringbuffer.ErrAlerted) {
		return ErrCancelled
	}
	return err
}

// Shutdown stops the channel: producers waiting for space and pending waits
// are released with ErrCancelled and the aggregator halts. It reports whether
// the background goroutines exited within timeout. Shutdown is idempotent.
func (c *Channel[T]) Shutdown(timeout time.Duration) bool {
	if c.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
		c.alerter.Alert()
		c.waits.abandon()
		close(c.stopped)
		return true
	}

	if c.state.CompareAndSwap(int32(StateRunning), int32(StateShuttingDown)) {
		c.logger.Info("notification channel shutting down",
			logger.Cursor(c.ring.Cursor().Get()),
			logger.Sequence(c.aggregator.Sequence().Get()))
		c.alerter.Alert()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	start := time.Now()
	select {
	case <-c.stopped:
		c.logger.Info("notification channel stopped", logger.Duration(time.Since(start)))
		return true
	case <-timer.C:
		c.logger.Warn("notification channel shutdown timed out", logger.Duration(timeout))
		return false
	}
}

// State returns the lifecycle state.
func (c *Channel[T]) State() State {
	return State(c.state.Load())
}

// Cursor returns the highest sequence visible to readers, or NoSequence.
func (c *Channel[T]) Cursor() int64 {
	return c.visible.Get()
}

// Published returns the highest contiguously published sequence.
func (c *Channel[T]) Published() int64 {
	return c.ring.Cursor().Get()
}

// Aggregated returns the highest sequence folded into the full update.
func (c *Channel[T]) Aggregated() int64 {
	return c.aggregator.Sequence().Get()
}

// Capacity returns the ring capacity.
func (c *Channel[T]) Capacity() int64 {
	return c.ring.Capacity()
}

// MaxUpdatesToSend returns how far behind a client may be before it gets the full update.
func (c *Channel[T]) MaxUpdatesToSend() int64 {
	return c.maxUpdatesToSend
}

// PendingWaits returns the number of parked NotifyOnNext registrations.
func (c *Channel[T]) PendingWaits() int {
	return c.waits.len()
}
