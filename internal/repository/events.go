package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/models"
)

// EventRepository handles sporting event database operations
type EventRepository struct {
	db *Database
}

const eventColumns = `
	id, sport, event_id, name, competition, start_time, state, status_detail,
	home_team_id, away_team_id, home_name, away_name, home_score, away_score,
	venue_id, created_at, updated_at
`

func scanEvent(row pgx.Row) (*models.Event, error) {
	var e models.Event
	err := row.Scan(
		&e.ID, &e.Sport, &e.EventID, &e.Name, &e.Competition, &e.StartTime, &e.State, &e.StatusDetail,
		&e.HomeTeamID, &e.AwayTeamID, &e.HomeName, &e.AwayName, &e.HomeScore, &e.AwayScore,
		&e.VenueID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Upsert inserts or updates an event keyed by (sport, event_id) and returns
// the state stored before this write ("" for a new event).
func (r *EventRepository) Upsert(ctx context.Context, e *models.Event) (models.EventState, error) {
	query := `
		WITH prev AS (
			SELECT state FROM events WHERE sport = $1 AND event_id = $2
		)
		INSERT INTO events (
			sport, event_id, name, competition, start_time, state, status_detail,
			home_team_id, away_team_id, home_name, away_name, home_score, away_score, venue_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (sport, event_id) DO UPDATE SET
			name = EXCLUDED.name,
			competition = EXCLUDED.competition,
			start_time = EXCLUDED.start_time,
			state = EXCLUDED.state,
			status_detail = EXCLUDED.status_detail,
			home_team_id = COALESCE(EXCLUDED.home_team_id, events.home_team_id),
			away_team_id = COALESCE(EXCLUDED.away_team_id, events.away_team_id),
			home_name = COALESCE(EXCLUDED.home_name, events.home_name),
			away_name = COALESCE(EXCLUDED.away_name, events.away_name),
			home_score = EXCLUDED.home_score,
			away_score = EXCLUDED.away_score,
			venue_id = COALESCE(EXCLUDED.venue_id, events.venue_id),
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (SELECT state FROM prev)
	`

	start := time.Now()
	var prev sql.NullString
	err := r.db.Pool.QueryRow(ctx, query,
		e.Sport, e.EventID, e.Name, e.Competition, e.StartTime, e.State, e.StatusDetail,
		e.HomeTeamID, e.AwayTeamID, e.HomeName, e.AwayName, e.HomeScore, e.AwayScore, e.VenueID,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt, &prev)
	observe("upsert", "events", start, err)

	if err != nil {
		return "", fmt.Errorf("failed to upsert event %s/%s: %w", e.Sport, e.EventID, err)
	}

	log.Debug().
		Int64("id", e.ID).
		Str("sport", string(e.Sport)).
		Str("event_id", e.EventID).
		Str("state", string(e.State)).
		Msg("Event upserted")

	return models.EventState(prev.String), nil
}

// GetByEventID retrieves an event by its natural key
func (r *EventRepository) GetByEventID(ctx context.Context, sport models.Sport, eventID string) (*models.Event, error) {
	e, err := scanEvent(r.db.Pool.QueryRow(ctx, `
		SELECT `+eventColumns+` FROM events WHERE sport = $1 AND event_id = $2
	`, sport, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %s/%s: %w", sport, eventID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// GetByID retrieves an event by its database ID
func (r *EventRepository) GetByID(ctx context.Context, id int64) (*models.Event, error) {
	e, err := scanEvent(r.db.Pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// ListByState retrieves events of a sport in a given state
func (r *EventRepository) ListByState(ctx context.Context, sport models.Sport, state models.EventState) ([]*models.Event, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE sport = $1 AND state = $2
		ORDER BY start_time
	`, sport, state)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// CountLive returns the number of in-progress events of a sport
func (r *EventRepository) CountLive(ctx context.Context, sport models.Sport) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM events WHERE sport = $1 AND state = 'in'
	`, sport).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count live events: %w", err)
	}
	return n, nil
}

// Count returns the number of stored events of a sport
func (r *EventRepository) Count(ctx context.Context, sport models.Sport) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM events WHERE sport = $1`, sport).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}
