package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tipsterarena/backend/internal/models"
)

// BadgeRepository exposes the typed queries the badge evaluator needs.
// "Verified" tips are those settled as won or lost; void tips never count.
type BadgeRepository struct {
	db *Database
}

// GetProfile returns the profile with its stored badge flags
func (r *BadgeRepository) GetProfile(ctx context.Context, userID int64) (*models.TipsterProfile, error) {
	return r.db.Profiles.GetByUserID(ctx, userID)
}

// FindRecentVerifiedTips returns up to limit verified tips, most recent first
func (r *BadgeRepository) FindRecentVerifiedTips(ctx context.Context, userID int64, limit int) ([]*models.Tip, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+tipColumns+`
		FROM tips
		WHERE user_id = $1 AND status IN ('won', 'lost')
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent verified tips: %w", err)
	}
	return scanTips(rows)
}

// FindRecentVerifiedTipsBySport is FindRecentVerifiedTips restricted to one sport
func (r *BadgeRepository) FindRecentVerifiedTipsBySport(ctx context.Context, userID int64, sport models.Sport, limit int) ([]*models.Tip, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+tipColumns+`
		FROM tips
		WHERE user_id = $1 AND sport = $2 AND status IN ('won', 'lost')
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, userID, sport, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find recent verified %s tips: %w", sport, err)
	}
	return scanTips(rows)
}

// CountVerifiedTips returns the number of verified tips and how many were won
func (r *BadgeRepository) CountVerifiedTips(ctx context.Context, userID int64) (total, wins int, err error) {
	err = r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'won')
		FROM tips
		WHERE user_id = $1 AND status IN ('won', 'lost')
	`, userID).Scan(&total, &wins)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count verified tips: %w", err)
	}
	return total, wins, nil
}

// FindFirstWin returns the earliest won tip, or nil when there is none
func (r *BadgeRepository) FindFirstWin(ctx context.Context, userID int64) (*models.Tip, error) {
	tip, err := scanTip(r.db.Pool.QueryRow(ctx, `
		SELECT `+tipColumns+`
		FROM tips
		WHERE user_id = $1 AND status = 'won'
		ORDER BY created_at ASC, id ASC
		LIMIT 1
	`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find first win: %w", err)
	}
	return tip, nil
}

// HasWinWithBetType reports whether the user ever won a tip of the given sport
// and bet type. Bet types compare case-insensitively.
func (r *BadgeRepository) HasWinWithBetType(ctx context.Context, userID int64, sport models.Sport, betType string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tips
			WHERE user_id = $1 AND sport = $2 AND status = 'won'
			  AND LOWER(TRIM(bet_type)) = LOWER(TRIM($3))
		)
	`, userID, sport, betType).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check won bet type: %w", err)
	}
	return exists, nil
}

// FindWonTips returns every won tip
func (r *BadgeRepository) FindWonTips(ctx context.Context, userID int64) ([]*models.Tip, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+tipColumns+`
		FROM tips
		WHERE user_id = $1 AND status = 'won'
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find won tips: %w", err)
	}
	return scanTips(rows)
}

// FindTipCreationTimes returns the creation time of every tip the user wrote
func (r *BadgeRepository) FindTipCreationTimes(ctx context.Context, userID int64) ([]time.Time, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT created_at FROM tips WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find tip creation times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan tip creation time: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tip creation times: %w", err)
	}
	return times, nil
}

// MaxTipLikes returns the like count of the user's most liked tip
func (r *BadgeRepository) MaxTipLikes(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(c), 0) FROM (
			SELECT COUNT(l.id) AS c
			FROM tips t
			LEFT JOIN tip_likes l ON l.tip_id = t.id
			WHERE t.user_id = $1
			GROUP BY t.id
		) per_tip
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to get max tip likes: %w", err)
	}
	return n, nil
}

// MaxTipShares returns the share count of the user's most shared tip
func (r *BadgeRepository) MaxTipShares(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(c), 0) FROM (
			SELECT COUNT(s.id) AS c
			FROM tips t
			LEFT JOIN tip_shares s ON s.tip_id = t.id
			WHERE t.user_id = $1
			GROUP BY t.id
		) per_tip
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to get max tip shares: %w", err)
	}
	return n, nil
}

// CountDistinctCommentedAuthors counts the other users whose tips this user
// has commented on
func (r *BadgeRepository) CountDistinctCommentedAuthors(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT t.user_id)
		FROM tip_comments c
		JOIN tips t ON t.id = c.tip_id
		WHERE c.user_id = $1 AND t.user_id <> $1
	`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count commented authors: %w", err)
	}
	return n, nil
}

const badgeColumns = `
	badge_hot_streak, badge_blazing, badge_cold_streak, badge_titan,
	badge_fast_starter, badge_football_oracle, badge_golf_outright,
	badge_crystal_ball_cracked, badge_long_shot, badge_moonshot,
	badge_night_owl, badge_crowd_favourite, badge_mentor,
	badge_veteran, badge_viral
`

func badgeDest(b *models.BadgeFlags) []any {
	return []any{
		&b.HotStreak, &b.Blazing, &b.ColdStreak, &b.Titan,
		&b.FastStarter, &b.FootballOracle, &b.GolfOutright,
		&b.CrystalBallCracked, &b.LongShot, &b.Moonshot,
		&b.NightOwl, &b.CrowdFavourite, &b.Mentor,
		&b.Veteran, &b.Viral,
	}
}

// MergeBadges ORs b into the stored flags and returns the flags before and
// after. The row is locked for the duration, so concurrent merges never
// clear each other's flags.
func (r *BadgeRepository) MergeBadges(ctx context.Context, userID int64, b models.BadgeFlags) (prev, merged models.BadgeFlags, err error) {
	start := time.Now()
	err = pgx.BeginFunc(ctx, r.db.Pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			SELECT `+badgeColumns+`
			FROM tipster_profiles
			WHERE user_id = $1
			FOR UPDATE
		`, userID).Scan(badgeDest(&prev)...)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("profile for user %d: %w", userID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock profile: %w", err)
		}

		return tx.QueryRow(ctx, `
			UPDATE tipster_profiles SET
				badge_hot_streak = badge_hot_streak OR $2,
				badge_blazing = badge_blazing OR $3,
				badge_cold_streak = badge_cold_streak OR $4,
				badge_titan = badge_titan OR $5,
				badge_fast_starter = badge_fast_starter OR $6,
				badge_football_oracle = badge_football_oracle OR $7,
				badge_golf_outright = badge_golf_outright OR $8,
				badge_crystal_ball_cracked = badge_crystal_ball_cracked OR $9,
				badge_long_shot = badge_long_shot OR $10,
				badge_moonshot = badge_moonshot OR $11,
				badge_night_owl = badge_night_owl OR $12,
				badge_crowd_favourite = badge_crowd_favourite OR $13,
				badge_mentor = badge_mentor OR $14,
				badge_veteran = badge_veteran OR $15,
				badge_viral = badge_viral OR $16,
				updated_at = NOW()
			WHERE user_id = $1
			RETURNING `+badgeColumns,
			userID,
			b.HotStreak, b.Blazing, b.ColdStreak, b.Titan,
			b.FastStarter, b.FootballOracle, b.GolfOutright,
			b.CrystalBallCracked, b.LongShot, b.Moonshot,
			b.NightOwl, b.CrowdFavourite, b.Mentor,
			b.Veteran, b.Viral,
		).Scan(badgeDest(&merged)...)
	})
	observe("update", "tipster_profiles", start, err)
	if err != nil && !errors.Is(err, ErrNotFound) {
		err = fmt.Errorf("failed to merge badges: %w", err)
	}
	return prev, merged, err
}
