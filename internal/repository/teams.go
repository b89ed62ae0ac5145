package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/models"
)

// TeamRepository handles team database operations
type TeamRepository struct {
	db *Database
}

// Upsert inserts or updates a team keyed by (sport, provider_key)
func (r *TeamRepository) Upsert(ctx context.Context, team *models.Team) error {
	query := `
		INSERT INTO teams (sport, provider_key, name, abbreviation)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sport, provider_key) DO UPDATE SET
			name = EXCLUDED.name,
			abbreviation = EXCLUDED.abbreviation,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		team.Sport, team.ProviderKey, team.Name, team.Abbreviation,
	).Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert team: %w", err)
	}

	log.Debug().
		Int64("id", team.ID).
		Str("key", team.ProviderKey).
		Str("name", team.Name).
		Msg("Team upserted")

	return nil
}

// GetByKey retrieves a team by its natural key
func (r *TeamRepository) GetByKey(ctx context.Context, sport models.Sport, key string) (*models.Team, error) {
	query := `
		SELECT id, sport, provider_key, name, abbreviation, created_at, updated_at
		FROM teams
		WHERE sport = $1 AND provider_key = $2
	`

	var team models.Team
	err := r.db.Pool.QueryRow(ctx, query, sport, key).Scan(
		&team.ID, &team.Sport, &team.ProviderKey, &team.Name, &team.Abbreviation,
		&team.CreatedAt, &team.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("team %s/%s: %w", sport, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	return &team, nil
}

// ListBySport retrieves all teams for a sport
func (r *TeamRepository) ListBySport(ctx context.Context, sport models.Sport) ([]*models.Team, error) {
	query := `
		SELECT id, sport, provider_key, name, abbreviation, created_at, updated_at
		FROM teams
		WHERE sport = $1
		ORDER BY name
	`

	rows, err := r.db.Pool.Query(ctx, query, sport)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []*models.Team
	for rows.Next() {
		var team models.Team
		err := rows.Scan(
			&team.ID, &team.Sport, &team.ProviderKey, &team.Name, &team.Abbreviation,
			&team.CreatedAt, &team.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, &team)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}

	return teams, nil
}

// ParticipantRepository handles players and horses
type ParticipantRepository struct {
	db *Database
}

// Upsert inserts or updates a participant keyed by (sport, kind, provider_key)
func (r *ParticipantRepository) Upsert(ctx context.Context, p *models.Participant) error {
	query := `
		INSERT INTO participants (sport, kind, provider_key, name, country)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sport, kind, provider_key) DO UPDATE SET
			name = EXCLUDED.name,
			country = COALESCE(EXCLUDED.country, participants.country),
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		p.Sport, p.Kind, p.ProviderKey, p.Name, p.Country,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert participant: %w", err)
	}
	return nil
}

// Count returns the number of participants of a kind for a sport
func (r *ParticipantRepository) Count(ctx context.Context, sport models.Sport, kind string) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM participants WHERE sport = $1 AND kind = $2
	`, sport, kind).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return n, nil
}

// VenueRepository handles stadiums, courses and racecourses
type VenueRepository struct {
	db *Database
}

// Upsert inserts or updates a venue keyed by key
func (r *VenueRepository) Upsert(ctx context.Context, v *models.Venue) error {
	query := `
		INSERT INTO venues (key, name, city, country)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name,
			city = EXCLUDED.city,
			country = EXCLUDED.country,
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.Pool.QueryRow(ctx, query, v.Key, v.Name, v.City, v.Country).
		Scan(&v.ID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert venue: %w", err)
	}
	return nil
}
