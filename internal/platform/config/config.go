package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Environment names still accepted from older deployments.
const (
	legacyTokenVar    = "DISCORD_BOT_TOKEN"
	timezoneVar       = "TIMEZONE_OFFSET_HOURS"
	legacyTimezoneVar = "DISCORD_EMOJI_RANKING_TIMEZONE_OFFSET"
)

type Config struct {
	AppEnv         string `env:"APP_ENV" default:"development"`
	Port           string `env:"PORT" default:"8080"`
	DiscordToken   string `env:"DISCORD_TOKEN"`
	DiscordGuildID string `env:"DISCORD_GUILD_ID"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisURL       string `env:"REDIS_URL"`
	LogLevel       string `env:"LOG_LEVEL" default:"info"`
	LogFormat      string `env:"LOG_FORMAT" default:"text"`

	TimezoneOffsetHours int `env:"TIMEZONE_OFFSET_HOURS" default:"0"`
	DefaultRank         int `env:"DEFAULT_RANK" default:"10"`
	MaxRank             int `env:"MAX_RANK" default:"25"`
	FetchConcurrency    int `env:"FETCH_CONCURRENCY" default:"4"`
	ReportRateLimit     int `env:"REPORT_RATE_LIMIT" default:"6"` // reports per guild per minute

	ReactorCacheTTL time.Duration `env:"REACTOR_CACHE_TTL" default:"10m"`
	ReportTimeout   time.Duration `env:"REPORT_TIMEOUT" default:"10m"`

	APIToken     string  `env:"API_TOKEN"`                  // bearer token for /api, empty disables the API
	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"5"` // HTTP API requests per client IP per second, 0 disables
	APIBurst     int     `env:"API_BURST" default:"10"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := applyLegacy(&cfg); err != nil {
		return nil, err
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Location is the fixed zone used for date arguments when a guild has no
// stored settings.
func (c *Config) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", c.TimezoneOffsetHours), c.TimezoneOffsetHours*3600)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func applyLegacy(cfg *Config) error {
	if cfg.DiscordToken == "" {
		cfg.DiscordToken = os.Getenv(legacyTokenVar)
	}

	if _, ok := os.LookupEnv(timezoneVar); ok {
		return nil
	}
	raw, ok := os.LookupEnv(legacyTimezoneVar)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	offset, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%s must be an integer: %w", legacyTimezoneVar, err)
	}
	cfg.TimezoneOffsetHours = offset
	return nil
}

func validate(cfg *Config) error {
	if cfg.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}
	if cfg.TimezoneOffsetHours < -12 || cfg.TimezoneOffsetHours > 14 {
		return fmt.Errorf("TIMEZONE_OFFSET_HOURS must be between -12 and 14, got %d", cfg.TimezoneOffsetHours)
	}
	if cfg.DefaultRank < 1 {
		return fmt.Errorf("DEFAULT_RANK must be positive, got %d", cfg.DefaultRank)
	}
	if cfg.MaxRank < 1 {
		return fmt.Errorf("MAX_RANK must be positive, got %d", cfg.MaxRank)
	}
	if cfg.DefaultRank > cfg.MaxRank {
		return fmt.Errorf("DEFAULT_RANK (%d) must not exceed MAX_RANK (%d)", cfg.DefaultRank, cfg.MaxRank)
	}
	if cfg.FetchConcurrency < 1 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", cfg.FetchConcurrency)
	}
	if cfg.ReportRateLimit < 1 {
		return fmt.Errorf("REPORT_RATE_LIMIT must be positive, got %d", cfg.ReportRateLimit)
	}
	if cfg.APIRateLimit < 0 {
		return fmt.Errorf("API_RATE_LIMIT must not be negative, got %g", cfg.APIRateLimit)
	}
	if cfg.ReactorCacheTTL < 0 {
		return errors.New("REACTOR_CACHE_TTL must not be negative")
	}
	if cfg.ReportTimeout <= 0 {
		return fmt.Errorf("REPORT_TIMEOUT must be positive, got %s", cfg.ReportTimeout)
	}
	return nil
}
