// Package tipsters holds the user-facing workflows: registration, tip
// submission and settlement, engagement and subscriptions. Every workflow
// that can change a tipster's record re-runs the badge evaluator.
package tipsters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/badges"
	"tipsterarena/backend/internal/metrics"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
	"tipsterarena/backend/internal/repository"
)

var (
	// ErrInvalidTip wraps every submission validation failure
	ErrInvalidTip = errors.New("invalid tip")
	// ErrInvalidTransition means the tip is not pending or the target status is not a settlement
	ErrInvalidTransition = errors.New("invalid tip status transition")
	// ErrInvalidUsername means the username is empty or too long
	ErrInvalidUsername = errors.New("invalid username")
)

const (
	maxUsernameLength = 50
	defaultTipLimit   = 20
	maxTipLimit       = 100
)

type UserStore interface {
	Register(ctx context.Context, username string) (*models.User, *models.TipsterProfile, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type ProfileStore interface {
	GetByUserID(ctx context.Context, userID int64) (*models.TipsterProfile, error)
}

type TipStore interface {
	Create(ctx context.Context, tip *models.Tip) error
	GetByID(ctx context.Context, id int64) (*models.Tip, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.Tip, error)
	Settle(ctx context.Context, id int64, status models.TipStatus) (*models.Tip, error)
}

type EngagementStore interface {
	Like(ctx context.Context, tipID, userID int64) (bool, error)
	Share(ctx context.Context, tipID, userID int64) (*models.Share, error)
	Comment(ctx context.Context, tipID, userID int64, body string) (*models.Comment, error)
}

type SubscriptionStore interface {
	Subscribe(ctx context.Context, subscriberID, tipsterID int64) (bool, error)
}

// BadgeEvaluator re-evaluates one tipster
type BadgeEvaluator interface {
	Evaluate(ctx context.Context, userID int64) ([]string, error)
}

// Settled is the payload published on tips.{userID}
type Settled struct {
	TipID     int64            `json:"tip_id"`
	UserID    int64            `json:"user_id"`
	Status    models.TipStatus `json:"status"`
	Selection string           `json:"selection"`
	Odds      string           `json:"odds"`
	SettledAt time.Time        `json:"settled_at"`
}

// Tipster is a public profile: the user, its counters and earned badges
type Tipster struct {
	User    *models.User           `json:"user"`
	Profile *models.TipsterProfile `json:"profile"`
	WinRate float64                `json:"win_rate"`
	Badges  []string               `json:"badges"`
}

type Service struct {
	users         UserStore
	profiles      ProfileStore
	tips          TipStore
	engagement    EngagementStore
	subscriptions SubscriptionStore
	evaluator     BadgeEvaluator
	bus           notify.Bus
}

func NewService(users UserStore, profiles ProfileStore, tips TipStore, engagement EngagementStore, subscriptions SubscriptionStore, evaluator BadgeEvaluator, bus notify.Bus) *Service {
	return &Service{
		users:         users,
		profiles:      profiles,
		tips:          tips,
		engagement:    engagement,
		subscriptions: subscriptions,
		evaluator:     evaluator,
		bus:           bus,
	}
}

// NewServiceFromDatabase wires the Postgres repositories
func NewServiceFromDatabase(db *repository.Database, evaluator BadgeEvaluator, bus notify.Bus) *Service {
	return NewService(db.Users, db.Profiles, db.Tips, db.Engagement, db.Subscriptions, evaluator, bus)
}

// Register creates a user together with its tipster profile
func (s *Service) Register(ctx context.Context, username string) (*models.User, *models.TipsterProfile, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > maxUsernameLength {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidUsername, username)
	}
	return s.users.Register(ctx, username)
}

// Tipster looks up a public profile by username
func (s *Service) Tipster(ctx context.Context, username string) (*Tipster, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	profile, err := s.profiles.GetByUserID(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	badgeNames := profile.Badges.Names()
	if badgeNames == nil {
		badgeNames = []string{}
	}
	return &Tipster{
		User:    user,
		Profile: profile,
		WinRate: profile.WinRate(),
		Badges:  badgeNames,
	}, nil
}

// Tips lists a tipster's tips, newest first. limit is clamped to 1..100
// and defaults to 20.
func (s *Service) Tips(ctx context.Context, userID int64, limit int) ([]*models.Tip, error) {
	if limit <= 0 {
		limit = defaultTipLimit
	}
	if limit > maxTipLimit {
		limit = maxTipLimit
	}
	tips, err := s.tips.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if tips == nil {
		tips = []*models.Tip{}
	}
	return tips, nil
}

// ValidateTip checks a submission without storing it
func ValidateTip(in *models.TipInput) (models.Sport, error) {
	sport, err := models.ParseSport(in.Sport)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTip, err)
	}
	if strings.TrimSpace(in.Selection) == "" {
		return "", fmt.Errorf("%w: selection is required", ErrInvalidTip)
	}
	if !badges.ValidOdds(in.Odds) {
		return "", fmt.Errorf("%w: odds %q must be decimal above 1.0 or a fraction like 6/1", ErrInvalidTip, in.Odds)
	}
	if in.Confidence < 1 || in.Confidence > 5 {
		return "", fmt.Errorf("%w: confidence must be between 1 and 5", ErrInvalidTip)
	}
	return sport, nil
}

// SubmitTip validates and stores a pending tip
func (s *Service) SubmitTip(ctx context.Context, in *models.TipInput) (*models.Tip, error) {
	sport, err := ValidateTip(in)
	if err != nil {
		return nil, err
	}

	tip := in.ToTip(sport)
	tip.Odds = strings.TrimSpace(tip.Odds)
	if err := s.tips.Create(ctx, tip); err != nil {
		return nil, err
	}

	// Creation time alone can earn a badge
	s.evaluate(ctx, tip.UserID)
	return tip, nil
}

// VerifyTip settles a pending tip as won, lost or void
func (s *Service) VerifyTip(ctx context.Context, tipID int64, status models.TipStatus) (*models.Tip, []string, error) {
	switch status {
	case models.TipWon, models.TipLost, models.TipVoid:
	default:
		return nil, nil, fmt.Errorf("%w: cannot settle as %q", ErrInvalidTransition, status)
	}

	tip, err := s.tips.Settle(ctx, tipID, status)
	if errors.Is(err, repository.ErrConflict) {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if err != nil {
		return nil, nil, err
	}

	if s.bus != nil {
		settledAt := time.Now().UTC()
		if tip.VerifiedAt.Valid {
			settledAt = tip.VerifiedAt.Time
		}
		payload := Settled{
			TipID:     tip.ID,
			UserID:    tip.UserID,
			Status:    tip.Status,
			Selection: tip.Selection,
			Odds:      tip.Odds,
			SettledAt: settledAt,
		}
		if _, err := s.bus.Publish(ctx, notify.TipTopic(tip.UserID), notify.KindTipSettled, payload); err != nil && !errors.Is(err, notify.ErrClosed) {
			log.Warn().Err(err).Int64("tip_id", tip.ID).Msg("Failed to publish tip settlement")
		}
	}

	if s.evaluator == nil {
		return tip, nil, nil
	}
	awarded, err := s.evaluator.Evaluate(ctx, tip.UserID)
	if err != nil {
		return tip, nil, err
	}
	return tip, awarded, nil
}

// Like records userID liking a tip. A repeated like changes nothing.
func (s *Service) Like(ctx context.Context, tipID, userID int64) (bool, error) {
	tip, err := s.tips.GetByID(ctx, tipID)
	if err != nil {
		return false, err
	}
	created, err := s.engagement.Like(ctx, tipID, userID)
	if err != nil {
		return false, err
	}
	if created {
		s.evaluate(ctx, tip.UserID)
	}
	return created, nil
}

// Share records userID sharing a tip
func (s *Service) Share(ctx context.Context, tipID, userID int64) (*models.Share, error) {
	tip, err := s.tips.GetByID(ctx, tipID)
	if err != nil {
		return nil, err
	}
	share, err := s.engagement.Share(ctx, tipID, userID)
	if err != nil {
		return nil, err
	}
	s.evaluate(ctx, tip.UserID)
	return share, nil
}

// Comment records userID commenting on a tip. Both the author and the
// commenter are re-evaluated; the commenter for the mentor badge.
func (s *Service) Comment(ctx context.Context, tipID, userID int64, body string) (*models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("%w: comment body is required", ErrInvalidTip)
	}
	tip, err := s.tips.GetByID(ctx, tipID)
	if err != nil {
		return nil, err
	}
	comment, err := s.engagement.Comment(ctx, tipID, userID, body)
	if err != nil {
		return nil, err
	}
	s.evaluate(ctx, tip.UserID)
	if userID != tip.UserID {
		s.evaluate(ctx, userID)
	}
	return comment, nil
}

// Subscribe makes subscriberID follow tipsterID. Idempotent.
func (s *Service) Subscribe(ctx context.Context, subscriberID, tipsterID int64) (bool, error) {
	if subscriberID == tipsterID {
		return false, fmt.Errorf("%w: cannot subscribe to yourself", repository.ErrConflict)
	}
	return s.subscriptions.Subscribe(ctx, subscriberID, tipsterID)
}

// evaluate runs the evaluator after an engagement write. The write has
// already succeeded, so a failure here is logged rather than returned.
func (s *Service) evaluate(ctx context.Context, userID int64) {
	if s.evaluator == nil {
		return
	}
	if _, err := s.evaluator.Evaluate(ctx, userID); err != nil {
		metrics.RecordError("badges", "evaluate")
		log.Error().Err(err).Int64("user_id", userID).Msg("Badge evaluation failed")
	}
}
