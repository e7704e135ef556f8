package longpollhttp

import (
	"log/slog"
	"time"

	"github.com/ajsutton/disruptedLongPoll/pkg/logger"
)

// Config holds the HTTP settings of the long-poll endpoints.
type Config struct {
	PollTimeout time.Duration `env:"LONGPOLL_HTTP_POLL_TIMEOUT" envDefault:"30s"`      // PollTimeout bounds how long a request stays parked.
	MaxBodySize int64         `env:"LONGPOLL_HTTP_MAX_BODY_SIZE" envDefault:"1048576"` // MaxBodySize limits publish request bodies.
	SignalName  string        `env:"LONGPOLL_HTTP_SIGNAL_NAME" envDefault:"longpoll"`  // SignalName is the datastar signal updates are patched into.
}

// Option configures the handlers.
type Option func(*options)

type options struct {
	pollTimeout time.Duration
	maxBodySize int64
	signalName  string
	logger      *slog.Logger
}

const (
	defaultPollTimeout = 30 * time.Second
	defaultMaxBodySize = 1 << 20
	defaultSignalName  = "longpoll"
)

func newOptions(opts []Option) *options {
	o := &options{
		pollTimeout: defaultPollTimeout,
		maxBodySize: defaultMaxBodySize,
		signalName:  defaultSignalName,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.Discard()
	}
	return o
}

// FromConfig converts cfg into options, skipping zero values.
func FromConfig(cfg Config) []Option {
	opts := make([]Option, 0, 3)
	if cfg.PollTimeout > 0 {
		opts = append(opts, WithPollTimeout(cfg.PollTimeout))
	}
	if cfg.MaxBodySize > 0 {
		opts = append(opts, WithMaxBodySize(cfg.MaxBodySize))
	}
	if cfg.SignalName != "" {
		opts = append(opts, WithSignalName(cfg.SignalName))
	}
	return opts
}

// WithPollTimeout sets how long a request waits for the next notification
// before it is answered with 204 No Content.
func WithPollTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("WithPollTimeout: duration must be > 0")
	}
	return func(o *options) { o.pollTimeout = d }
}

// WithMaxBodySize limits the size of publish request bodies.
func WithMaxBodySize(n int64) Option {
	if n <= 0 {
		panic("WithMaxBodySize: size must be > 0")
	}
	return func(o *options) { o.maxBodySize = n }
}

// WithSignalName sets the datastar signal the stream handler patches.
func WithSignalName(name string) Option {
	if name == "" {
		panic("WithSignalName: name cannot be empty")
	}
	return func(o *options) { o.signalName = name }
}

// WithLogger sets the logger. If nil, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}
