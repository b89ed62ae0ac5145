package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"tipsterarena/backend/internal/models"
)

// EngagementRepository records likes, shares and comments on tips
type EngagementRepository struct {
	db *Database
}

// Like records a like. A repeated like by the same user is ignored and
// reported as created=false.
func (r *EngagementRepository) Like(ctx context.Context, tipID, userID int64) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		INSERT INTO tip_likes (tip_id, user_id) VALUES ($1, $2)
		ON CONFLICT (tip_id, user_id) DO NOTHING
	`, tipID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to like tip: %w", mapConstraintError(err, "like"))
	}
	return tag.RowsAffected() == 1, nil
}

// Share records a share
func (r *EngagementRepository) Share(ctx context.Context, tipID, userID int64) (*models.Share, error) {
	share := &models.Share{TipID: tipID, UserID: userID}
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO tip_shares (tip_id, user_id) VALUES ($1, $2)
		RETURNING id, created_at
	`, tipID, userID).Scan(&share.ID, &share.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to share tip: %w", mapConstraintError(err, "share"))
	}
	return share, nil
}

// Comment records a comment
func (r *EngagementRepository) Comment(ctx context.Context, tipID, userID int64, body string) (*models.Comment, error) {
	comment := &models.Comment{TipID: tipID, UserID: userID, Body: body}
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO tip_comments (tip_id, user_id, body) VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, tipID, userID, body).Scan(&comment.ID, &comment.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to comment on tip: %w", mapConstraintError(err, "comment"))
	}
	return comment, nil
}

// Counts returns the like, share and comment counts of a tip
func (r *EngagementRepository) Counts(ctx context.Context, tipID int64) (likes, shares, comments int, err error) {
	err = r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM tip_likes WHERE tip_id = $1),
			(SELECT COUNT(*) FROM tip_shares WHERE tip_id = $1),
			(SELECT COUNT(*) FROM tip_comments WHERE tip_id = $1)
	`, tipID).Scan(&likes, &shares, &comments)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to count engagement: %w", err)
	}
	return likes, shares, comments, nil
}

// SubscriptionRepository records tipster subscriptions
type SubscriptionRepository struct {
	db *Database
}

// Subscribe records a subscription and increments the tipster's subscriber
// count. Idempotent: a repeat returns created=false and changes nothing.
func (r *SubscriptionRepository) Subscribe(ctx context.Context, subscriberID, tipsterID int64) (bool, error) {
	created := false
	err := pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO subscriptions (subscriber_id, tipster_id) VALUES ($1, $2)
			ON CONFLICT (subscriber_id, tipster_id) DO NOTHING
		`, subscriberID, tipsterID)
		if err != nil {
			return fmt.Errorf("failed to subscribe: %w", mapConstraintError(err, "subscription"))
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		created = true

		tag, err = tx.Exec(ctx, `
			UPDATE tipster_profiles
			SET subscriber_count = subscriber_count + 1, updated_at = NOW()
			WHERE user_id = $1
		`, tipsterID)
		if err != nil {
			return fmt.Errorf("failed to update subscriber count: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("profile for user %d: %w", tipsterID, ErrNotFound)
		}
		return nil
	})
	return created, err
}

// IsSubscribed reports whether subscriberID follows tipsterID
func (r *SubscriptionRepository) IsSubscribed(ctx context.Context, subscriberID, tipsterID int64) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM subscriptions WHERE subscriber_id = $1 AND tipster_id = $2)
	`, subscriberID, tipsterID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check subscription: %w", err)
	}
	return exists, nil
}
