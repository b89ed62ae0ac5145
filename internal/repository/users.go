package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/models"
)

// UserRepository handles user database operations
type UserRepository struct {
	db *Database
}

// Register creates the user and its tipster profile in one transaction
func (r *UserRepository) Register(ctx context.Context, username string) (*models.User, *models.TipsterProfile, error) {
	user := &models.User{Username: username}
	profile := &models.TipsterProfile{}

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO users (username) VALUES ($1)
			RETURNING id, date_joined
		`, username).Scan(&user.ID, &user.DateJoined)
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO tipster_profiles (user_id) VALUES ($1)
			RETURNING id, user_id, total_tips, wins, losses, subscriber_count,
			          revenue_share::float8, created_at, updated_at
		`, user.ID).Scan(
			&profile.ID, &profile.UserID, &profile.TotalTips, &profile.Wins, &profile.Losses,
			&profile.SubscriberCount, &profile.RevenueShare, &profile.CreatedAt, &profile.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, mapConstraintError(err, "user "+username)
	}
	profile.DateJoined = user.DateJoined

	log.Info().
		Int64("user_id", user.ID).
		Str("username", username).
		Msg("User registered")

	return user, profile, nil
}

// GetByID retrieves a user
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, username, date_joined FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Username, &user.DateJoined)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetByUsername retrieves a user by name
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, username, date_joined FROM users WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.DateJoined)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ProfileRepository reads tipster profiles
type ProfileRepository struct {
	db *Database
}

const profileColumns = `
	p.id, p.user_id, p.total_tips, p.wins, p.losses, p.subscriber_count,
	p.revenue_share::float8, u.date_joined, p.created_at, p.updated_at,
	p.badge_hot_streak, p.badge_blazing, p.badge_cold_streak, p.badge_titan,
	p.badge_fast_starter, p.badge_football_oracle, p.badge_golf_outright,
	p.badge_crystal_ball_cracked, p.badge_long_shot, p.badge_moonshot,
	p.badge_night_owl, p.badge_crowd_favourite, p.badge_mentor,
	p.badge_veteran, p.badge_viral
`

func scanProfile(row pgx.Row) (*models.TipsterProfile, error) {
	var p models.TipsterProfile
	b := &p.Badges
	err := row.Scan(
		&p.ID, &p.UserID, &p.TotalTips, &p.Wins, &p.Losses, &p.SubscriberCount,
		&p.RevenueShare, &p.DateJoined, &p.CreatedAt, &p.UpdatedAt,
		&b.HotStreak, &b.Blazing, &b.ColdStreak, &b.Titan,
		&b.FastStarter, &b.FootballOracle, &b.GolfOutright,
		&b.CrystalBallCracked, &b.LongShot, &b.Moonshot,
		&b.NightOwl, &b.CrowdFavourite, &b.Mentor,
		&b.Veteran, &b.Viral,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByUserID retrieves the profile of a user
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID int64) (*models.TipsterProfile, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM tipster_profiles p
		JOIN users u ON u.id = p.user_id
		WHERE p.user_id = $1
	`, userID)

	profile, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("profile for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}
