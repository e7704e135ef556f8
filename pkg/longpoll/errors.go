package longpoll

import "errors"

var (
	// ErrInvalidConfiguration is returned by the constructors when the capacity
	// is not a power of two or maxUpdatesToSend does not fit in the ring.
	ErrInvalidConfiguration = errors.New("longpoll: invalid configuration")

	// ErrCancelled is delivered to producers and waiters released by Shutdown.
	// It is part of normal teardown, not an application failure.
	ErrCancelled = errors.New("longpoll: cancelled by shutdown")

	// ErrClosed is returned by Publish when the channel is not running.
	ErrClosed = errors.New("longpoll: channel is not running")

	// ErrAlreadyStarted is returned by Start on a running channel.
	ErrAlreadyStarted = errors.New("longpoll: channel already started")
)
