package longpollhttp

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"

	"github.com/ajsutton/disruptedLongPoll/pkg/logger"
	"github.com/ajsutton/disruptedLongPoll/pkg/longpoll"
)

type streamHandler[T any] struct {
	src  Source[T]
	opts *options
}

// NewStreamHandler returns a server-sent events endpoint. Every update is
// patched into the configured datastar signal until the client disconnects or
// the channel shuts down.
func NewStreamHandler[T any](src Source[T], opts ...Option) http.Handler {
	return &streamHandler[T]{src: src, opts: newOptions(opts)}
}

func (h *streamHandler[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	last := ParseSequence(r.FormValue(SequenceParam))
	log := h.opts.logger.With(logger.LastSequence(last))
	sse := datastar.NewSSE(w, r)

	for {
		update := h.src.NotificationsSince(last)
		if fresh(update, last) {
			data, err := json.Marshal(map[string]Response[T]{h.opts.signalName: newResponse(update)})
			if err != nil {
				log.ErrorContext(ctx, "encode stream update", logger.Error(err))
				return
			}
			if err := sse.PatchSignals(data); err != nil {
				log.DebugContext(ctx, "stream client went away", logger.Error(err))
				return
			}
			last = update.Sequence
		}

		if err := awaitChange(ctx, h.src, last, update); err != nil {
			if errors.Is(err, longpoll.ErrCancelled) {
				log.DebugContext(ctx, "stream closed by shutdown")
			}
			return
		}
	}
}
