package logger

import (
	"log/slog"
	"time"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Error records err under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event records the event name under the key "event".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// Duration records a duration under the key "duration".
func Duration(d time.Duration) slog.Attr {
	return slog.Duration("duration", d)
}

// Sequence records a notification sequence under the key "sequence".
func Sequence(seq int64) slog.Attr {
	return slog.Int64("sequence", seq)
}

// Cursor records the published cursor under the key "cursor".
func Cursor(seq int64) slog.Attr {
	return slog.Int64("cursor", seq)
}

// LastSequence records the sequence a client reported under the key "last_sequence".
func LastSequence(seq int64) slog.Attr {
	return slog.Int64("last_sequence", seq)
}

// WaitID records a pending wait identifier under the key "wait_id".
// If id is empty, it returns an empty Attr.
func WaitID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("wait_id", id)
}

// RequestID records the request identifier under the key "request_id".
// If id is empty, it returns an empty Attr.
func RequestID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("request_id", id)
}
