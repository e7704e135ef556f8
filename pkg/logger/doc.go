// Package logger builds slog loggers for the notification server and holds
// the attribute constructors shared by its packages.
//
// New applies a list of Option values on top of JSON output at info level and
// wraps the resulting handler with ContextHandler, which adds attributes pulled
// from the context of each record:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "longpoll-server"),
//		logger.WithLevelName(cfg.Level),
//		logger.WithContextExtractors(requestID),
//	)
//	logger.SetAsDefault(log)
//
//	log.Info("notification published", logger.Sequence(seq), logger.Duration(time.Since(start)))
//
// Request scoped attributes can also ride on the context itself:
//
//	ctx := logger.ContextWith(r.Context(), logger.LastSequence(last))
//	log.DebugContext(ctx, "long-poll parked")
//
// Error, WaitID and RequestID return an empty Attr for empty input, so they can
// be passed unconditionally.
package logger
