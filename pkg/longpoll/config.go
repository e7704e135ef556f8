package longpoll

import (
	"fmt"
	"time"
)

// Config holds the construction parameters of a Channel.
type Config struct {
	// Capacity is the number of slots in the ring. Must be a power of two.
	Capacity int `env:"LONGPOLL_CAPACITY" envDefault:"1024"`

	// MaxUpdatesToSend is how far behind a client may fall before it is sent
	// the full update. Must be smaller than Capacity.
	MaxUpdatesToSend int64 `env:"LONGPOLL_MAX_UPDATES_TO_SEND" envDefault:"512"`

	// DispatchWorkers is the number of goroutines running NotifyOnNext callbacks.
	DispatchWorkers int `env:"LONGPOLL_DISPATCH_WORKERS" envDefault:"4"`

	// PublishedVisibility exposes notifications before the aggregator folded them.
	PublishedVisibility bool `env:"LONGPOLL_PUBLISHED_VISIBILITY" envDefault:"false"`

	// ShutdownTimeout bounds Shutdown when the channel is driven by Run.
	ShutdownTimeout time.Duration `env:"LONGPOLL_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func (c Config) validate() error {
	if c.Capacity <= 0 || c.Capacity&(c.Capacity-1) != 0 {
		return fmt.Errorf("%w: capacity %d is not a power of two", ErrInvalidConfiguration, c.Capacity)
	}
	if c.MaxUpdatesToSend < 0 {
		return fmt.Errorf("%w: maxUpdatesToSend %d is negative", ErrInvalidConfiguration, c.MaxUpdatesToSend)
	}
	if c.MaxUpdatesToSend >= int64(c.Capacity) {
		return fmt.Errorf("%w: maxUpdatesToSend %d must be smaller than capacity %d",
			ErrInvalidConfiguration, c.MaxUpdatesToSend, c.Capacity)
	}
	if c.DispatchWorkers < 0 {
		return fmt.Errorf("%w: dispatch workers %d is negative", ErrInvalidConfiguration, c.DispatchWorkers)
	}
	return nil
}
