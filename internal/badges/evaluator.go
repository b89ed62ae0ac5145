// Package badges awards achievement flags to tipsters from their settled
// tips and community activity. Flags are never revoked.
package badges

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/metrics"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
)

// Store is the read/write surface the evaluator needs
type Store interface {
	GetProfile(ctx context.Context, userID int64) (*models.TipsterProfile, error)
	FindRecentVerifiedTips(ctx context.Context, userID int64, limit int) ([]*models.Tip, error)
	FindRecentVerifiedTipsBySport(ctx context.Context, userID int64, sport models.Sport, limit int) ([]*models.Tip, error)
	CountVerifiedTips(ctx context.Context, userID int64) (total, wins int, err error)
	FindFirstWin(ctx context.Context, userID int64) (*models.Tip, error)
	HasWinWithBetType(ctx context.Context, userID int64, sport models.Sport, betType string) (bool, error)
	FindWonTips(ctx context.Context, userID int64) ([]*models.Tip, error)
	FindTipCreationTimes(ctx context.Context, userID int64) ([]time.Time, error)
	MaxTipLikes(ctx context.Context, userID int64) (int, error)
	MaxTipShares(ctx context.Context, userID int64) (int, error)
	CountDistinctCommentedAuthors(ctx context.Context, userID int64) (int, error)
	MergeBadges(ctx context.Context, userID int64, b models.BadgeFlags) (prev, merged models.BadgeFlags, err error)
}

// Awarded is the payload published on badges.{userID}
type Awarded struct {
	UserID    int64     `json:"user_id"`
	Badge     string    `json:"badge"`
	AwardedAt time.Time `json:"awarded_at"`
}

type Evaluator struct {
	store Store
	bus   notify.Bus
	loc   *time.Location
	now   func() time.Time
}

// NewEvaluator creates an evaluator. loc is the timezone for hour-of-day
// rules; bus may be nil.
func NewEvaluator(store Store, bus notify.Bus, loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	return &Evaluator{
		store: store,
		bus:   bus,
		loc:   loc,
		now:   time.Now,
	}
}

func (e *Evaluator) gather(ctx context.Context, userID int64) (Facts, error) {
	f := Facts{Now: e.now(), Location: e.loc}
	var err error

	if f.Profile, err = e.store.GetProfile(ctx, userID); err != nil {
		return f, err
	}
	if f.Recent, err = e.store.FindRecentVerifiedTips(ctx, userID, streakWindow); err != nil {
		return f, err
	}
	if f.RecentFootball, err = e.store.FindRecentVerifiedTipsBySport(ctx, userID, models.Football, sportStreakWindow); err != nil {
		return f, err
	}
	if f.VerifiedTotal, f.VerifiedWins, err = e.store.CountVerifiedTips(ctx, userID); err != nil {
		return f, err
	}
	if f.FirstWin, err = e.store.FindFirstWin(ctx, userID); err != nil {
		return f, err
	}
	if f.GolfOutright, err = e.store.HasWinWithBetType(ctx, userID, models.Golf, golfOutrightBetType); err != nil {
		return f, err
	}
	if f.WonTips, err = e.store.FindWonTips(ctx, userID); err != nil {
		return f, err
	}
	if f.TipTimes, err = e.store.FindTipCreationTimes(ctx, userID); err != nil {
		return f, err
	}
	if f.MaxLikes, err = e.store.MaxTipLikes(ctx, userID); err != nil {
		return f, err
	}
	if f.MaxShares, err = e.store.MaxTipShares(ctx, userID); err != nil {
		return f, err
	}
	if f.CommentedAuthors, err = e.store.CountDistinctCommentedAuthors(ctx, userID); err != nil {
		return f, err
	}
	return f, nil
}

// Evaluate recomputes userID's badges and returns the ones newly awarded.
// Storage errors are returned as-is.
func (e *Evaluator) Evaluate(ctx context.Context, userID int64) ([]string, error) {
	facts, err := e.gather(ctx, userID)
	if err != nil {
		metrics.RecordBadgeEvaluation("error", nil)
		return nil, fmt.Errorf("failed to evaluate badges for user %d: %w", userID, err)
	}

	computed := Compute(facts)
	stored := facts.Profile.Badges
	if len(stored.Merge(computed).Newly(stored)) == 0 {
		metrics.RecordBadgeEvaluation("unchanged", nil)
		return nil, nil
	}

	// Another evaluation may have written since the profile was read; the
	// store merges into the current row and reports what it held
	prev, merged, err := e.store.MergeBadges(ctx, userID, computed)
	if err != nil {
		metrics.RecordBadgeEvaluation("error", nil)
		return nil, fmt.Errorf("failed to store badges for user %d: %w", userID, err)
	}
	awarded := merged.Newly(prev)
	if len(awarded) == 0 {
		metrics.RecordBadgeEvaluation("unchanged", nil)
		return nil, nil
	}
	metrics.RecordBadgeEvaluation("awarded", awarded)

	log.Info().
		Int64("user_id", userID).
		Strs("awarded", awarded).
		Msg("Badges awarded")

	if e.bus != nil {
		at := e.now().UTC()
		for _, name := range awarded {
			payload := Awarded{UserID: userID, Badge: name, AwardedAt: at}
			if _, err := e.bus.Publish(ctx, notify.BadgeTopic(userID), notify.KindBadgeAwarded, payload); err != nil && !errors.Is(err, notify.ErrClosed) {
				log.Warn().Err(err).Int64("user_id", userID).Str("badge", name).Msg("Failed to publish badge")
			}
		}
	}

	return awarded, nil
}
