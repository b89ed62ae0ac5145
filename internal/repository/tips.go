package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/models"
)

// TipRepository handles tip database operations
type TipRepository struct {
	db *Database
}

const tipColumns = `
	id, user_id, sport, event_id, selection, bet_type, odds, confidence,
	analysis, status, verified_at, created_at, updated_at
`

func scanTip(row pgx.Row) (*models.Tip, error) {
	var tip models.Tip
	err := row.Scan(
		&tip.ID, &tip.UserID, &tip.Sport, &tip.EventID, &tip.Selection, &tip.BetType,
		&tip.Odds, &tip.Confidence, &tip.Analysis, &tip.Status, &tip.VerifiedAt,
		&tip.CreatedAt, &tip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tip, nil
}

func scanTips(rows pgx.Rows) ([]*models.Tip, error) {
	defer rows.Close()

	var tips []*models.Tip
	for rows.Next() {
		tip, err := scanTip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tip: %w", err)
		}
		tips = append(tips, tip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tips: %w", err)
	}
	return tips, nil
}

// Create inserts a tip and bumps the author's tip counter. A zero CreatedAt
// means now.
func (r *TipRepository) Create(ctx context.Context, tip *models.Tip) error {
	var createdAt any
	if !tip.CreatedAt.IsZero() {
		createdAt = tip.CreatedAt
	}

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO tips (
				user_id, sport, event_id, selection, bet_type, odds, confidence,
				analysis, status, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10::timestamptz, NOW()))
			RETURNING id, created_at, updated_at
		`,
			tip.UserID, tip.Sport, tip.EventID, tip.Selection, tip.BetType, tip.Odds,
			tip.Confidence, tip.Analysis, tip.Status, createdAt,
		).Scan(&tip.ID, &tip.CreatedAt, &tip.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create tip: %w", mapConstraintError(err, "tip"))
		}

		_, err = tx.Exec(ctx, `
			UPDATE tipster_profiles
			SET total_tips = total_tips + 1, updated_at = NOW()
			WHERE user_id = $1
		`, tip.UserID)
		if err != nil {
			return fmt.Errorf("failed to update tip counter: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Debug().
		Int64("id", tip.ID).
		Int64("user_id", tip.UserID).
		Str("sport", string(tip.Sport)).
		Msg("Tip created")

	return nil
}

// GetByID retrieves a tip
func (r *TipRepository) GetByID(ctx context.Context, id int64) (*models.Tip, error) {
	tip, err := scanTip(r.db.Pool.QueryRow(ctx, `SELECT `+tipColumns+` FROM tips WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("tip %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tip: %w", err)
	}
	return tip, nil
}

// ListByUser returns a user's tips, newest first
func (r *TipRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Tip, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+tipColumns+`
		FROM tips
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tips: %w", err)
	}
	return scanTips(rows)
}

// Settle moves a pending tip to status and updates the author's win/loss
// counters in the same transaction. Returns ErrConflict if the tip is no
// longer pending.
func (r *TipRepository) Settle(ctx context.Context, id int64, status models.TipStatus) (*models.Tip, error) {
	var tip *models.Tip

	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		var err error
		tip, err = scanTip(tx.QueryRow(ctx, `
			UPDATE tips
			SET status = $2, verified_at = NOW(), updated_at = NOW()
			WHERE id = $1 AND status = 'pending'
			RETURNING `+tipColumns,
			id, status,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tips WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check tip: %w", err)
			}
			if !exists {
				return fmt.Errorf("tip %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("tip %d is not pending: %w", id, ErrConflict)
		}
		if err != nil {
			return fmt.Errorf("failed to settle tip: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE tipster_profiles
			SET wins = wins + CASE WHEN $2 = 'won' THEN 1 ELSE 0 END,
			    losses = losses + CASE WHEN $2 = 'lost' THEN 1 ELSE 0 END,
			    updated_at = NOW()
			WHERE user_id = $1
		`, tip.UserID, string(status))
		if err != nil {
			return fmt.Errorf("failed to update profile counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("tip_id", id).
		Int64("user_id", tip.UserID).
		Str("status", string(status)).
		Msg("Tip settled")

	return tip, nil
}
