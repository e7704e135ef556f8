// Command longpoll-server serves a key/value document over long-poll and
// server-sent events. Clients publish partial documents and receive the
// changes they missed, or the whole document when they fall too far behind.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/ajsutton/disruptedLongPoll/internal/config"
	"github.com/ajsutton/disruptedLongPoll/internal/kvstate"
	"github.com/ajsutton/disruptedLongPoll/internal/server"
	"github.com/ajsutton/disruptedLongPoll/pkg/logger"
	"github.com/ajsutton/disruptedLongPoll/pkg/longpoll"
	"github.com/ajsutton/disruptedLongPoll/pkg/longpollhttp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.Service),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(requestID),
	)
	logger.SetAsDefault(log)

	ch, err := longpoll.NewCombining[*kvstate.Document](kvstate.Manager{}, cfg.LongPoll, longpoll.WithLogger(log))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewFromConfig(cfg.Server,
		server.WithLogger(log),
		server.WithDrainHook(func(context.Context) {
			ch.Shutdown(cfg.LongPoll.ShutdownTimeout)
		}),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(ch.Run(gctx))
	g.Go(func() error {
		return srv.Run(gctx, newRouter(ch, cfg, log))
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", logger.Error(err))
		return err
	}
	log.Info("server stopped")
	return nil
}

func requestID(ctx context.Context) (slog.Attr, bool) {
	id := middleware.GetReqID(ctx)
	if id == "" {
		return slog.Attr{}, false
	}
	return logger.RequestID(id), true
}

// requestAttrs tags every record logged during a request with its route.
func requestAttrs(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.ContextWith(r.Context(),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type documentChannel = longpoll.Channel[*kvstate.Document]

func newRouter(ch *documentChannel, cfg config.Config, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestAttrs)

	r.Get("/health/live", server.HealthCheckHandler(log))
	r.Get("/health/ready", server.HealthCheckHandler(log, func(context.Context) error {
		if s := ch.State(); s != longpoll.StateRunning {
			return fmt.Errorf("notification channel is %s", s)
		}
		return nil
	}))

	opts := append(longpollhttp.FromConfig(cfg.HTTP), longpollhttp.WithLogger(log))
	r.Route("/notifications", func(r chi.Router) {
		if cfg.PublishRoute {
			longpollhttp.Routes[*kvstate.Document](r, ch, opts...)
			return
		}
		r.Method(http.MethodGet, "/", longpollhttp.NewHandler[*kvstate.Document](ch, opts...))
		r.Method(http.MethodGet, "/stream", longpollhttp.NewStreamHandler[*kvstate.Document](ch, opts...))
	})

	r.Get("/document", func(w http.ResponseWriter, r *http.Request) {
		doc, seq := ch.FullUpdate()
		w.Header().Set(longpollhttp.SequenceHeader, fmt.Sprint(seq))
		w.Header().Set("Content-Type", "application/json")
		body, err := doc.MarshalJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(body)
	})

	return r
}
