package ringbuffer

import "errors"

var (
	// ErrInvalidCapacity is returned when the ring capacity is not a positive power of two.
	ErrInvalidCapacity = errors.New("ringbuffer: capacity must be a positive power of two")

	// ErrAlerted is returned by blocking operations once the Alerter has fired.
	ErrAlerted = errors.New("ringbuffer: barrier alerted")
)
