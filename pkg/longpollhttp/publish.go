package longpollhttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ajsutton/disruptedLongPoll/pkg/logger"
	"github.com/ajsutton/disruptedLongPoll/pkg/longpoll"
)

// PublishResponse is the JSON body returned by the publish endpoint.
type PublishResponse struct {
	Sequence int64 `json:"sequence"`
}

type publishHandler[T any] struct {
	pub  Publisher[T]
	opts *options
}

// NewPublishHandler returns an endpoint that decodes a JSON request body into
// T and publishes it.
func NewPublishHandler[T any](pub Publisher[T], opts ...Option) http.Handler {
	return &publishHandler[T]{pub: pub, opts: newOptions(opts)}
}

func (h *publishHandler[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, h.opts.maxBodySize)
	defer body.Close()

	var value T
	if err := json.NewDecoder(body).Decode(&value); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	seq, err := h.pub.Publish(r.Context(), value)
	switch {
	case err == nil:
	case errors.Is(err, longpoll.ErrClosed), errors.Is(err, longpoll.ErrCancelled):
		writeError(w, http.StatusServiceUnavailable, err)
		return
	case r.Context().Err() != nil:
		return
	default:
		h.opts.logger.ErrorContext(r.Context(), "publish failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.opts.logger.DebugContext(r.Context(), "notification published", logger.Sequence(seq))
	writeJSON(w, http.StatusAccepted, PublishResponse{Sequence: seq})
}
