package longpollhttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Channel is a notification channel that can be read and written.
type Channel[T any] interface {
	Source[T]
	Publisher[T]
}

// Routes mounts the endpoints of ch on r:
//
//	GET  /        long-poll
//	GET  /stream  server-sent events
//	POST /        publish
func Routes[T any](r chi.Router, ch Channel[T], opts ...Option) {
	r.Method(http.MethodGet, "/", NewHandler[T](ch, opts...))
	r.Method(http.MethodGet, "/stream", NewStreamHandler[T](ch, opts...))
	r.Method(http.MethodPost, "/", NewPublishHandler[T](ch, opts...))
}

// Router returns a chi router serving the endpoints of ch.
func Router[T any](ch Channel[T], opts ...Option) chi.Router {
	r := chi.NewRouter()
	Routes(r, ch, opts...)
	return r
}
