// Package longpollhttp exposes a longpoll.Channel over HTTP.
//
// The long-poll endpoint takes the last sequence a client received in the
// lastSequence parameter. Clients that are behind get a JSON response right
// away:
//
//	{"kind":"merged","sequence":41,"notifications":[...]}
//
// Clients that are up to date are parked until the next notification. When
// the poll timeout expires first the response is 204 No Content; the current
// cursor is always reported in the Long-Poll-Sequence header. Requests parked
// while the channel shuts down get 503.
//
// The stream endpoint pushes the same responses as datastar patch-signals
// events, and the publish endpoint decodes a JSON body and publishes it:
//
//	r := chi.NewRouter()
//	r.Route("/notifications", func(r chi.Router) {
//		longpollhttp.Routes[*kvstate.Document](r, ch, longpollhttp.WithLogger(log))
//	})
package longpollhttp
