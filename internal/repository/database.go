package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/metrics"
)

//go:embed schema.sql
var schemaSQL string

var (
	// ErrNotFound is returned (wrapped) when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a conditional update matched no row
	ErrConflict = errors.New("conflict")
)

// Database holds the database connection pool and provides access to repositories
type Database struct {
	Pool *pgxpool.Pool

	// Tipster side
	Users         *UserRepository
	Profiles      *ProfileRepository
	Tips          *TipRepository
	Engagement    *EngagementRepository
	Subscriptions *SubscriptionRepository
	Badges        *BadgeRepository

	// Feed side
	Teams        *TeamRepository
	Participants *ParticipantRepository
	Venues       *VenueRepository
	Events       *EventRepository
	Stats        *StatsRepository
	Results      *ResultRepository
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDatabase creates a new database connection pool and initializes repositories
func NewDatabase(ctx context.Context, cfg Config) (*Database, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Successfully connected to database")

	db := &Database{
		Pool: pool,
	}

	db.Users = &UserRepository{db: db}
	db.Profiles = &ProfileRepository{db: db}
	db.Tips = &TipRepository{db: db}
	db.Engagement = &EngagementRepository{db: db}
	db.Subscriptions = &SubscriptionRepository{db: db}
	db.Badges = &BadgeRepository{db: db}
	db.Teams = &TeamRepository{db: db}
	db.Participants = &ParticipantRepository{db: db}
	db.Venues = &VenueRepository{db: db}
	db.Events = &EventRepository{db: db}
	db.Stats = &StatsRepository{db: db}
	db.Results = &ResultRepository{db: db}

	return db, nil
}

// Migrate applies the embedded schema
func (db *Database) Migrate(ctx context.Context) error {
	start := time.Now()
	_, err := db.Pool.Exec(ctx, schemaSQL)
	observe("migrate", "schema", start, err)
	if err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	log.Info().
		Dur("duration", time.Since(start)).
		Msg("Database schema applied")

	return nil
}

// Close closes the database connection pool
func (db *Database) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Info().Msg("Database connection pool closed")
	}
}

// Health checks if the database is healthy
func (db *Database) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// PoolStats returns database pool statistics and refreshes the pool gauges
func (db *Database) PoolStats() map[string]interface{} {
	stat := db.Pool.Stat()
	metrics.UpdateDBConnectionStats(stat.AcquiredConns(), stat.IdleConns())
	return map[string]interface{}{
		"total_conns":    stat.TotalConns(),
		"acquired_conns": stat.AcquiredConns(),
		"idle_conns":     stat.IdleConns(),
		"max_conns":      stat.MaxConns(),
	}
}

func observe(operation, table string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordDBQuery(operation, table, status, time.Since(start).Seconds())
}

// pgErrorCode returns the SQLSTATE of a Postgres error, or ""
func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// mapConstraintError turns unique and foreign key violations into
// ErrConflict and ErrNotFound
func mapConstraintError(err error, what string) error {
	switch pgErrorCode(err) {
	case "23505":
		return fmt.Errorf("%s already exists: %w", what, ErrConflict)
	case "23503":
		return fmt.Errorf("%s references a missing row: %w", what, ErrNotFound)
	}
	return err
}
