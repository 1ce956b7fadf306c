// Command officer-sync serves the Discord activity sync API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Validates the Discord credentials and the report channel table.
//   - Optionally connects to Postgres for run history and runs migrations.
//   - Exposes the streaming sync endpoint plus /healthz, /readyz and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM; open streams are canceled.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/officer-sync/config"
	"github.com/onnwee/officer-sync/db"
	"github.com/onnwee/officer-sync/discord"
	"github.com/onnwee/officer-sync/server"
	"github.com/onnwee/officer-sync/syncjob"
	"github.com/onnwee/officer-sync/telemetry"
)

// Version is set via ldflags at build time.
var Version = "dev"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	telemetry.ConfigureLogging(os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateDiscordReady(); err != nil {
		slog.Error("discord not configured", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidateChannels(syncjob.ChannelKeys()); err != nil {
		slog.Error("channel table incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("officer-sync", Version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := discord.New(cfg.DiscordToken, cfg.DiscordTokenType, nil)
	if err != nil {
		slog.Error("discord client init failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()

	opts := syncjob.Options{
		Channels:      cfg.Channels,
		Location:      cfg.Location,
		BatchPause:    cfg.FetchBatchPause,
		RetryInitial:  cfg.FetchRetryInitial,
		RetryMax:      cfg.FetchRetryMax,
		MaxRetries:    cfg.FetchMaxRetries,
		EndpointPause: cfg.EndpointPause,
		Slots:         syncjob.NewSlots(cfg.MaxConcurrentSync),
	}
	deps := server.Deps{Config: cfg}

	// Run history is optional; without DB_DSN jobs are only logged.
	if cfg.DBDsn != "" {
		database, err := db.Connect(ctx, cfg.DBDsn)
		if err != nil {
			slog.Error("failed to open db", slog.Any("err", err))
			os.Exit(1)
		}
		defer func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("err", err))
			}
		}()
		migrateDatabase(ctx, database)

		store := &db.RunStore{DB: database}
		if n, err := store.MarkAbandoned(ctx); err != nil {
			slog.Warn("failed to mark abandoned runs", slog.Any("err", err))
		} else if n > 0 {
			slog.Info("marked abandoned runs", slog.Int64("count", n))
		}
		go db.StartRetentionJob(ctx, store, db.RetentionPolicy{KeepDays: cfg.RunRetentionDays})

		opts.Recorder = store
		deps.Runs = store
		deps.DB = database
	} else {
		slog.Info("DB_DSN not set, run history disabled")
	}

	deps.Job = syncjob.New(client, opts)

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	slog.Info("starting officer-sync",
		slog.String("addr", cfg.HTTPAddr),
		slog.String("version", Version),
		slog.Int("max_concurrent_syncs", cfg.MaxConcurrentSync),
		slog.String("timezone", cfg.Location.String()))

	if err := server.Start(ctx, deps, cfg.HTTPAddr); err != nil {
		slog.Error("http server exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}

// migrateDatabase runs versioned migrations and falls back to the embedded
// idempotent schema when they fail.
func migrateDatabase(ctx context.Context, database *sql.DB) {
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
		return
	}
	slog.Info("versioned migrations completed successfully", slog.String("component", "db_migrate"))
}
