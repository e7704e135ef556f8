package longpollhttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/ajsutton/disruptedLongPoll/pkg/logger"
	"github.com/ajsutton/disruptedLongPoll/pkg/longpoll"
)

const (
	// SequenceParam is the query or form parameter carrying the last
	// sequence a client received.
	SequenceParam = "lastSequence"
	// SequenceHeader reports the channel cursor on every long-poll response.
	SequenceHeader = "Long-Poll-Sequence"
)

// Source is the read side of a notification channel.
type Source[T any] interface {
	NotificationsSince(lastSequenceReceived int64) longpoll.Update[T]
	WaitForNext(ctx context.Context, lastSequenceReceived int64) error
	AwaitAggregated(ctx context.Context, seq int64) error
}

// Publisher is the write side of a notification channel.
type Publisher[T any] interface {
	Publish(ctx context.Context, value T) (int64, error)
}

// Response is the JSON body of a long-poll answer.
type Response[T any] struct {
	Kind          string `json:"kind"`
	Sequence      int64  `json:"sequence"`
	Notifications []T    `json:"notifications"`
}

func newResponse[T any](u longpoll.Update[T]) Response[T] {
	values := u.Values
	if values == nil {
		values = []T{}
	}
	return Response[T]{Kind: u.Kind.String(), Sequence: u.Sequence, Notifications: values}
}

// ParseSequence reads a client supplied sequence. Missing, malformed,
// negative and out of range values mean the client has received nothing.
// math.MaxInt64 is out of range: no sequence can follow it.
func ParseSequence(raw string) int64 {
	if raw == "" {
		return longpoll.NoSequence
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 || seq == math.MaxInt64 {
		return longpoll.NoSequence
	}
	return seq
}

// fresh reports whether u moves a client that last received last forward.
// A full update can lag behind last when the aggregator trails the cursor.
func fresh[T any](u longpoll.Update[T], last int64) bool {
	return !u.Empty() && u.Sequence > last
}

// awaitChange parks until an update newer than last may exist. A stale full
// update means the cursor already moved, so wait for the aggregator instead.
func awaitChange[T any](ctx context.Context, src Source[T], last int64, u longpoll.Update[T]) error {
	if u.Kind == longpoll.KindFullUpdate {
		return src.AwaitAggregated(ctx, last+1)
	}
	return src.WaitForNext(ctx, last)
}

type pollHandler[T any] struct {
	src  Source[T]
	opts *options
}

// NewHandler returns the long-poll endpoint. A client that is behind is
// answered at once; one that is up to date is parked until the next
// notification, the poll timeout (204 No Content) or channel shutdown (503).
func NewHandler[T any](src Source[T], opts ...Option) http.Handler {
	return &pollHandler[T]{src: src, opts: newOptions(opts)}
}

func (h *pollHandler[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	last := ParseSequence(r.FormValue(SequenceParam))
	log := h.opts.logger.With(logger.LastSequence(last))

	update := h.src.NotificationsSince(last)
	if !fresh(update, last) {
		ctx, cancel := context.WithTimeout(r.Context(), h.opts.pollTimeout)
		err := awaitChange(ctx, h.src, last, update)
		cancel()

		switch {
		case err == nil:
			update = h.src.NotificationsSince(last)
		case errors.Is(err, longpoll.ErrCancelled):
			writeError(w, http.StatusServiceUnavailable, err)
			return
		case r.Context().Err() != nil:
			log.DebugContext(r.Context(), "long-poll client went away")
			return
		case errors.Is(err, context.DeadlineExceeded):
		default:
			log.ErrorContext(r.Context(), "long-poll wait failed", logger.Error(err))
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}

	w.Header().Set(SequenceHeader, strconv.FormatInt(update.Sequence, 10))
	if !fresh(update, last) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	log.DebugContext(r.Context(), "long-poll answered",
		logger.Sequence(update.Sequence),
		slog.String("kind", update.Kind.String()),
		slog.Int("count", len(update.Values)))
	writeJSON(w, http.StatusOK, newResponse(update))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
