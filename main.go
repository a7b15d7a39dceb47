// Command chronicle-bot is the chat-triggered chronicle bot.
// It:
//   - Loads configuration and initializes structured logging, metrics and tracing.
//   - Connects to Postgres, optionally runs migrations, and verifies the
//     authorized_users, messages and bot_state tables (fatal when missing).
//   - Restores authorized users, bot state and channel history.
//   - Refreshes the chat token, then joins Twitch chat and dispatches commands.
//   - Exposes /healthz, /readyz, /status, /metrics and the admin reset endpoint.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/chronicle-bot/bot"
	"github.com/onnwee/chronicle-bot/chat"
	"github.com/onnwee/chronicle-bot/config"
	"github.com/onnwee/chronicle-bot/db"
	"github.com/onnwee/chronicle-bot/history"
	"github.com/onnwee/chronicle-bot/narrative"
	"github.com/onnwee/chronicle-bot/oauth"
	"github.com/onnwee/chronicle-bot/server"
	"github.com/onnwee/chronicle-bot/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chronicle-bot", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()
	slog.Info("telemetry ready", slog.Bool("tracing", telemetry.IsTracingEnabled()))

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		runMigrations(ctx, cfg.DBDsn, pool)
	}
	store := db.NewStore(pool)
	if err := store.CheckTables(ctx); err != nil {
		slog.Error("required tables unavailable", slog.Any("err", err), slog.String("component", "db"))
		os.Exit(1)
	}

	users, err := store.ListAuthorizedUsers(ctx)
	if err != nil {
		slog.Error("failed to load authorized users", slog.Any("err", err))
		os.Exit(1)
	}
	enabled, err := store.LoadBotState(ctx)
	if err != nil {
		slog.Error("failed to load bot state", slog.Any("err", err))
		os.Exit(1)
	}
	telemetry.SetBotEnabled(enabled)
	slog.Info("bot state loaded", slog.Bool("enabled", enabled), slog.Int("authorized_users", len(users)))

	// The batcher outlives ctx so queued lines are flushed during shutdown.
	batcher := db.NewBatcher(context.WithoutCancel(ctx), pool, db.BatchConfig{
		MaxBatch:   cfg.PersistBatchSize,
		FlushEvery: cfg.PersistFlushInterval,
		QueueSize:  cfg.PersistQueueSize,
	})
	defer batcher.Close()

	hist := history.NewStore(batcher, history.Options{ResetClearsSeen: cfg.ResetClearsSeenCommands})
	if cfg.RestoreHistory {
		lines, err := store.LoadMessages(ctx)
		if err != nil {
			slog.Warn("history restore failed; starting with empty context", slog.Any("err", err))
		} else {
			hist.Restore(lines)
			slog.Info("history restored", slog.Int("lines", len(lines)))
		}
	}

	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		slog.Error("generator setup failed", slog.Any("err", err))
		os.Exit(1)
	}

	client := chat.NewClient(chat.Options{
		Username: cfg.TwitchBotUsername,
		Token:    initialToken(ctx, cfg, store),
		Channels: cfg.TwitchChannels,
	})
	if cfg.CanRefresh() {
		oauth.StartRefresher(ctx, store, oauth.ProviderTwitch, cfg.TokenRefreshInterval, cfg.TokenRefreshWindow,
			oauth.TwitchRefreshFunc(cfg.TwitchClientID, cfg.TwitchClientSecret, oauth.TwitchEndpoint), client.SetToken)
	}

	dispatcher := bot.NewDispatcher(bot.NewState(users, enabled), hist, store, gen, client, bot.Options{Prefix: cfg.CommandPrefix})

	startPprof()

	// The chat connection outlives ctx until in-flight actions have replied.
	chatCtx, stopChat := context.WithCancel(context.WithoutCancel(ctx))
	defer stopChat()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("chronicle bot starting", slog.Any("channels", client.Channels()), slog.String("prefix", cfg.CommandPrefix))
		err := client.Run(chatCtx, dispatcher)
		if err == nil && gctx.Err() == nil {
			err = errors.New("twitch chat connection closed")
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down; draining in-flight commands")
		dispatcher.Drain()
		stopChat()
		return nil
	})
	g.Go(func() error {
		return server.Start(gctx, server.Deps{
			Store: store,
			Chat:  client,
			Bot:   dispatcher,
			Auth:  server.AuthOptions{Token: cfg.AdminToken, Username: cfg.AdminUsername, Password: cfg.AdminPassword},
		}, cfg.HTTPAddr)
	})
	if err := g.Wait(); err != nil {
		slog.Error("bot exited with error", slog.Any("err", err))
	}
	slog.Info("shutdown complete")
}

func setupLogging() {
	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format))
}

// runMigrations applies versioned migrations, falling back to the embedded
// idempotent schema when golang-migrate cannot run.
func runMigrations(ctx context.Context, dsn string, pool *pgxpool.Pool) {
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(dsn); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err),
			slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, pool); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
		slog.Info("embedded SQL migration completed", slog.String("component", "db_migrate"))
	}
}

func newGenerator(ctx context.Context, cfg *config.Config) (*narrative.Generator, error) {
	tmpl := narrative.DefaultTemplate()
	if cfg.PromptTemplatePath != "" {
		t, err := narrative.LoadTemplate(cfg.PromptTemplatePath)
		if err != nil {
			return nil, err
		}
		tmpl = t
	}
	backend, err := narrative.NewGeminiBackend(ctx, narrative.GeminiOptions{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if err != nil {
		return nil, err
	}
	slog.Info("narrative generator ready",
		slog.String("model", backend.Name()),
		slog.String("template", tmpl.Name),
		slog.String("template_version", tmpl.Version))
	return narrative.NewGenerator(backend, tmpl, cfg.GenerationTimeout), nil
}

// initialToken refreshes the chat token once when the refresh flow is
// configured, then falls back to the configured token and finally to the
// stored one.
func initialToken(ctx context.Context, cfg *config.Config, store *db.Store) string {
	if cfg.CanRefresh() {
		fn := oauth.TwitchRefreshFunc(cfg.TwitchClientID, cfg.TwitchClientSecret, oauth.TwitchEndpoint)
		at, err := oauth.RefreshNow(ctx, store, oauth.ProviderTwitch, cfg.TwitchRefreshToken, fn, nil)
		if err == nil {
			return at
		}
		slog.Warn("startup token refresh failed; using configured token", slog.Any("err", err))
	}
	if cfg.TwitchOAuthToken != "" {
		return cfg.TwitchOAuthToken
	}
	access, _, _, _, err := store.GetOAuthToken(ctx, oauth.ProviderTwitch)
	if err != nil {
		slog.Warn("stored token lookup failed", slog.Any("err", err))
	}
	return access
}

// startPprof enables profiling endpoints in debug mode (ENABLE_PPROF=1).
func startPprof() {
	if os.Getenv("ENABLE_PPROF") != "1" {
		return
	}
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
