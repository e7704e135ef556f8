// Package server runs the HTTP side of the notification server.
//
// Server.Run listens, serves and, once its context ends, shuts down in two
// steps: registered drain hooks run first (the notification channel is shut
// down there, which answers every parked long-poll request), then
// http.Server.Shutdown waits for in-flight requests to finish.
//
//	srv := server.NewFromConfig(cfg.Server,
//		server.WithLogger(log),
//		server.WithDrainHook(func(context.Context) { ch.Shutdown(timeout) }),
//	)
//	g.Go(func() error { return srv.Run(ctx, router) })
package server
