package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/emojirank/internal/adapter/discord"
	"github.com/pscheid92/emojirank/internal/adapter/httpserver"
	"github.com/pscheid92/emojirank/internal/adapter/metrics"
	"github.com/pscheid92/emojirank/internal/adapter/postgres"
	"github.com/pscheid92/emojirank/internal/adapter/redis"
	"github.com/pscheid92/emojirank/internal/app"
	"github.com/pscheid92/emojirank/internal/domain"
	"github.com/pscheid92/emojirank/internal/platform/config"
	"github.com/pscheid92/emojirank/internal/platform/logging"
	"github.com/pscheid92/emojirank/internal/platform/version"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, reg prometheus.Registerer) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, metrics.NewDBMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if _, err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config, reg prometheus.Registerer) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, metrics.NewRedisMetrics(reg))
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func setupDiscord(cfg *config.Config) *discordgo.Session {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		slog.Error("Failed to create Discord session", "error", err)
		os.Exit(1)
	}
	session.UserAgent = version.Get().UserAgent()
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	return session
}

func registerCommand(session *discordgo.Session, handler *discord.CommandHandler, guildID string) error {
	appID := ""
	if session.State != nil && session.State.User != nil {
		appID = session.State.User.ID
	}
	if appID == "" {
		me, err := session.User("@me")
		if err != nil {
			return fmt.Errorf("failed to resolve application id: %w", err)
		}
		appID = me.ID
	}
	return handler.Register(session, appID, guildID)
}

func runGracefulShutdown(srv *httpserver.Server, session *discordgo.Session) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		if err := session.Close(); err != nil {
			slog.Error("Discord session close error", "error", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	reg := metrics.NewRegistry()
	var healthChecks []httpserver.HealthCheck

	// Postgres and Redis are optional; without them settings fall back to
	// process defaults and reactor lists are always fetched from Discord.
	var settingsRepo domain.GuildSettingsRepository
	if cfg.DatabaseURL != "" {
		pool := setupDB(cfg, reg)
		defer pool.Close()
		settingsRepo = postgres.NewSettingsRepo(pool)
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})
	}

	var reactorCache app.ReactorCache
	if cfg.RedisURL != "" {
		redisClient := setupRedis(cfg, reg)
		defer func() { _ = redisClient.Close() }()
		reactorCache = redis.NewReactorCache(redisClient, cfg.ReactorCacheTTL)
		healthChecks = append(healthChecks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}

	session := setupDiscord(cfg)
	source := discord.NewSource(session, metrics.NewDiscordMetrics(reg))

	appSvc := app.NewService(source, settingsRepo, reactorCache, app.Options{
		DefaultRank:         cfg.DefaultRank,
		MaxRank:             cfg.MaxRank,
		TimezoneOffsetHours: cfg.TimezoneOffsetHours,
		FetchConcurrency:    cfg.FetchConcurrency,
		ReportsPerMinute:    cfg.ReportRateLimit,
		ReportTimeout:       cfg.ReportTimeout,
	}, clock, metrics.NewReportMetrics(reg), metrics.NewCacheMetrics(reg))

	commands := discord.NewCommandHandler(appSvc, cfg.MaxRank)
	session.AddHandler(commands.OnInteraction)
	session.AddHandler(commands.OnMessageCreate)
	session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Connected to Discord", "user", r.User.Username, "guilds", len(r.Guilds))
	})

	if err := session.Open(); err != nil {
		slog.Error("Failed to open Discord gateway", "error", err)
		os.Exit(1)
	}
	if err := registerCommand(session, commands, cfg.DiscordGuildID); err != nil {
		slog.Error("Failed to register slash command", "error", err)
		os.Exit(1)
	}

	srv := httpserver.NewServer(appSvc, httpserver.Options{
		Port:           cfg.Port,
		APIToken:       cfg.APIToken,
		APIRatePerSec:  cfg.APIRateLimit,
		APIBurst:       cfg.APIBurst,
		HealthChecks:   append(healthChecks, httpserver.HealthCheck{Name: "discord", Check: gatewayCheck(session)}),
		MetricsHandler: metrics.Handler(reg),
		HTTPMetrics:    metrics.NewHTTPMetrics(reg),
	})

	done := runGracefulShutdown(srv, session)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}

// gatewayCheck reports unhealthy while the gateway connection is down.
func gatewayCheck(session *discordgo.Session) func(context.Context) error {
	return func(context.Context) error {
		session.RLock()
		defer session.RUnlock()
		if !session.DataReady {
			return errors.New("discord gateway not connected")
		}
		return nil
	}
}
