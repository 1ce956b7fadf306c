// Package server exposes the HTTP API: the streaming sync endpoint, run history,
// the channel table, health probes and metrics. Every request gets a correlation
// id that flows into the sync job's logs and spans.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/officer-sync/config"
	"github.com/onnwee/officer-sync/db"
	"github.com/onnwee/officer-sync/syncjob"
)

// RunLister reads the run history.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]db.Run, error)
}

// Deps are the collaborators the HTTP layer needs. Runs and DB are nil when
// no database is configured.
type Deps struct {
	Config *config.Config
	Job    *syncjob.Job
	Runs   RunLister
	DB     *sql.DB
}

// NewMux returns the HTTP handler with all routes.
// ctx bounds the rate limiter cleanup goroutine.
func NewMux(ctx context.Context, deps Deps) http.Handler {
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.Config{}
	}
	h := NewHandlers(deps)
	limiter := newIPRateLimiter(ctx, newRateLimiterConfig(cfg))

	r := chi.NewRouter()
	r.Use(withCORS(newCORSConfig(cfg)))
	r.Use(withCorrelation)
	r.Use(recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", h.HandleHealthz)
	r.Get("/readyz", h.HandleReadyz)

	r.Route("/api", func(r chi.Router) {
		r.With(tokenAuth(cfg.SyncAPIToken), rateLimit(limiter)).
			Post("/discord/sync-stream", h.HandleSyncStream)
		r.Group(func(r chi.Router) {
			r.Use(tokenAuth(cfg.SyncAPIToken))
			r.Get("/sync/runs", h.HandleRuns)
			r.Get("/sync/channels", h.HandleChannels)
		})
	})
	return r
}

// Start runs the HTTP server and shuts down gracefully on context cancellation.
// WriteTimeout stays zero: a sync stream lasts as long as the job.
func Start(ctx context.Context, deps Deps, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(ctx, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("http server shutdown error", slog.Any("err", err))
		}
	}()

	slog.Info("http server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("http server error", slog.Any("err", err))
		return err
	}
	return nil
}
