package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"tipsterarena/backend/internal/models"
)

// Config holds all application configuration
type Config struct {
	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort int    `envconfig:"HTTP_PORT" default:"8080"`

	// Database
	DatabaseHost        string `envconfig:"DATABASE_HOST" default:"localhost"`
	DatabasePort        int    `envconfig:"DATABASE_PORT" default:"5432"`
	DatabaseName        string `envconfig:"DATABASE_NAME" default:"tipster_arena"`
	DatabaseUser        string `envconfig:"DATABASE_USER" default:"tipster"`
	DatabasePassword    string `envconfig:"DATABASE_PASSWORD" required:"true"`
	DatabaseSSLMode     string `envconfig:"DATABASE_SSL_MODE" default:"disable"`
	DatabaseAutoMigrate bool   `envconfig:"DATABASE_AUTO_MIGRATE" default:"true"`

	// Redis
	RedisEnabled  bool   `envconfig:"REDIS_ENABLED" default:"true"`
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Sports data provider
	ESPNBaseURL         string        `envconfig:"ESPN_BASE_URL" default:"https://site.api.espn.com/apis/site/v2/sports"`
	ProviderTimeout     time.Duration `envconfig:"PROVIDER_TIMEOUT" default:"20s"`
	ProviderMaxRetries  int           `envconfig:"PROVIDER_MAX_RETRIES" default:"2"`
	ProviderConcurrency int           `envconfig:"PROVIDER_CONCURRENCY" default:"4"`

	FootballLeagues []string `envconfig:"FOOTBALL_LEAGUES" default:"eng.1,esp.1,ita.1,ger.1,fra.1,uefa.champions"`
	GolfTours       []string `envconfig:"GOLF_TOURS" default:"pga,eur"`
	TennisTours     []string `envconfig:"TENNIS_TOURS" default:"atp,wta"`

	// Fixture horizons, in days relative to today
	FootballDaysBack    int `envconfig:"FOOTBALL_DAYS_BACK" default:"7"`
	FootballDaysForward int `envconfig:"FOOTBALL_DAYS_FORWARD" default:"14"`
	GolfDaysBack        int `envconfig:"GOLF_DAYS_BACK" default:"7"`
	GolfDaysForward     int `envconfig:"GOLF_DAYS_FORWARD" default:"21"`
	TennisDaysBack      int `envconfig:"TENNIS_DAYS_BACK" default:"3"`
	TennisDaysForward   int `envconfig:"TENNIS_DAYS_FORWARD" default:"7"`
	RacingDaysBack      int `envconfig:"RACING_DAYS_BACK" default:"1"`
	RacingDaysForward   int `envconfig:"RACING_DAYS_FORWARD" default:"2"`

	// Horse racing scraper
	RacingBaseDir         string        `envconfig:"RACING_BASE_DIR" default:"./data/racing"`
	RacingScraperCmd      string        `envconfig:"RACING_SCRAPER_CMD" default:""`
	RacingScraperTimeout  time.Duration `envconfig:"RACING_SCRAPER_TIMEOUT" default:"5m"`
	RacingMaxAttempts     int           `envconfig:"RACING_MAX_ATTEMPTS" default:"3"`
	RacingRetryDelay      time.Duration `envconfig:"RACING_RETRY_DELAY" default:"30s"`
	RacingTimezone        string        `envconfig:"RACING_TIMEZONE" default:"Europe/London"`
	RacingTwelveHourClock bool          `envconfig:"RACING_TWELVE_HOUR_CLOCK" default:"true"`

	// Scheduler
	EnableScheduler    bool          `envconfig:"ENABLE_SCHEDULER" default:"true"`
	InitialSyncEnabled bool          `envconfig:"INITIAL_SYNC_ENABLED" default:"false"`
	FootballCron       string        `envconfig:"FOOTBALL_CRON" default:"*/30 * * * *"`
	GolfCron           string        `envconfig:"GOLF_CRON" default:"0 * * * *"`
	TennisCron         string        `envconfig:"TENNIS_CRON" default:"*/30 * * * *"`
	RacingCron         string        `envconfig:"RACING_CRON" default:"0 7,12,18,22 * * *"`
	LivePollInterval   time.Duration `envconfig:"LIVE_POLL_INTERVAL" default:"60s"`
	ReconcileLockTTL   time.Duration `envconfig:"RECONCILE_LOCK_TTL" default:"15m"`

	// Notifications
	NotifyHistorySize int `envconfig:"NOTIFY_HISTORY_SIZE" default:"20"`

	// Admin
	AdminJWTSecret string `envconfig:"ADMIN_JWT_SECRET" default:"change_me"`

	// Badges
	BadgeTimezone string `envconfig:"BADGE_TIMEZONE" default:"Europe/London"`

	// Raw payload archive (S3-compatible)
	ArchiveBucket          string `envconfig:"ARCHIVE_BUCKET" default:""`
	ArchiveRegion          string `envconfig:"ARCHIVE_REGION" default:"auto"`
	ArchiveEndpoint        string `envconfig:"ARCHIVE_ENDPOINT" default:""`
	ArchiveAccessKeyID     string `envconfig:"ARCHIVE_ACCESS_KEY_ID" default:""`
	ArchiveSecretAccessKey string `envconfig:"ARCHIVE_SECRET_ACCESS_KEY" default:""`

	// Monitoring
	EnableMetrics bool `envconfig:"ENABLE_METRICS" default:"true"`
}

// Load loads configuration from environment variables
// It first attempts to load from .env file if in development mode
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DatabasePassword == "" {
		return fmt.Errorf("DATABASE_PASSWORD is required")
	}

	if c.AdminJWTSecret == "change_me" && c.IsProduction() {
		return fmt.Errorf("ADMIN_JWT_SECRET must be changed in production")
	}

	if c.ProviderMaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative")
	}

	if c.ProviderConcurrency < 1 {
		return fmt.Errorf("PROVIDER_CONCURRENCY must be at least 1")
	}

	if c.RacingMaxAttempts < 1 {
		return fmt.Errorf("RACING_MAX_ATTEMPTS must be at least 1")
	}

	if c.NotifyHistorySize < 0 {
		return fmt.Errorf("NOTIFY_HISTORY_SIZE must not be negative")
	}

	if _, err := time.LoadLocation(c.BadgeTimezone); err != nil {
		return fmt.Errorf("BADGE_TIMEZONE %q is not a valid location: %w", c.BadgeTimezone, err)
	}

	if _, err := time.LoadLocation(c.RacingTimezone); err != nil {
		return fmt.Errorf("RACING_TIMEZONE %q is not a valid location: %w", c.RacingTimezone, err)
	}

	return nil
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// BadgeLocation returns the timezone used for hour-of-day badge rules.
func (c *Config) BadgeLocation() *time.Location {
	loc, err := time.LoadLocation(c.BadgeTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RacingLocation returns the timezone racecard off times are given in
func (c *Config) RacingLocation() *time.Location {
	loc, err := time.LoadLocation(c.RacingTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RacingClock describes the off times the racing scraper writes
func (c *Config) RacingClock() models.RaceClock {
	return models.RaceClock{Location: c.RacingLocation(), TwelveHour: c.RacingTwelveHourClock}
}

// ArchiveEnabled reports whether raw provider payloads should be archived
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MustLoad loads configuration or panics on error
// Use this in main() where we want to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
