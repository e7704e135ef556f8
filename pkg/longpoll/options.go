package longpoll

import (
	"log/slog"
	"time"
)

// Visibility selects which sequence readers and waiters observe.
type Visibility int

const (
	// VisibilityAggregated exposes a sequence only after the aggregator has
	// folded it into the full update.
	VisibilityAggregated Visibility = iota
	// VisibilityPublished exposes a sequence as soon as it is published.
	VisibilityPublished
)

// Option configures a Channel.
type Option func(*options)

type options struct {
	logger            *slog.Logger
	dispatchWorkers   int
	dispatchQueueSize int
	visibility        Visibility
	shutdownTimeout   time.Duration
}

const (
	defaultDispatchWorkers   = 4
	defaultDispatchQueueSize = 256
	defaultShutdownTimeout   = 10 * time.Second
)

func defaultOptions(cfg Config) *options {
	o := &options{
		dispatchWorkers:   defaultDispatchWorkers,
		dispatchQueueSize: defaultDispatchQueueSize,
		visibility:        VisibilityAggregated,
		shutdownTimeout:   defaultShutdownTimeout,
	}
	if cfg.DispatchWorkers > 0 {
		o.dispatchWorkers = cfg.DispatchWorkers
	}
	if cfg.PublishedVisibility {
		o.visibility = VisibilityPublished
	}
	if cfg.ShutdownTimeout > 0 {
		o.shutdownTimeout = cfg.ShutdownTimeout
	}
	return o
}

// WithLogger sets the logger. If nil, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDispatchWorkers sets how many goroutines run NotifyOnNext callbacks.
func WithDispatchWorkers(n int) Option {
	if n <= 0 {
		panic("WithDispatchWorkers: n must be > 0")
	}
	return func(o *options) { o.dispatchWorkers = n }
}

// WithDispatchQueueSize sets how many resolved waits may queue for a worker
// before the dispatcher blocks.
func WithDispatchQueueSize(n int) Option {
	if n < 0 {
		panic("WithDispatchQueueSize: n must be >= 0")
	}
	return func(o *options) { o.dispatchQueueSize = n }
}

// WithPublishedVisibility lets readers see notifications as soon as they are
// published, before the full update reflects them.
func WithPublishedVisibility() Option {
	return func(o *options) { o.visibility = VisibilityPublished }
}

// WithShutdownTimeout sets how long Run waits for Shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("WithShutdownTimeout: duration must be > 0")
	}
	return func(o *options) { o.shutdownTimeout = d }
}
