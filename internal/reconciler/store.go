package reconciler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/archive"
	"tipsterarena/backend/internal/metrics"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
	"tipsterarena/backend/internal/repository"
)

type EventStore interface {
	Upsert(ctx context.Context, e *models.Event) (models.EventState, error)
	GetByEventID(ctx context.Context, sport models.Sport, eventID string) (*models.Event, error)
	CountLive(ctx context.Context, sport models.Sport) (int, error)
}

type TeamStore interface {
	Upsert(ctx context.Context, team *models.Team) error
}

type ParticipantStore interface {
	Upsert(ctx context.Context, p *models.Participant) error
}

type VenueStore interface {
	Upsert(ctx context.Context, v *models.Venue) error
}

type StatsStore interface {
	ReplaceForEvent(ctx context.Context, eventID int64, stats []*models.EventStat, keyEvents []*models.KeyEvent) error
	CountForEvent(ctx context.Context, eventID int64) (int, error)
}

type ResultStore interface {
	ReplaceForEvent(ctx context.Context, eventID int64, results []*models.EventResult) error
}

// Store groups the repositories the jobs write to
type Store struct {
	Events       EventStore
	Teams        TeamStore
	Participants ParticipantStore
	Venues       VenueStore
	Stats        StatsStore
	Results      ResultStore
}

// StoreFromDatabase wires the Postgres repositories
func StoreFromDatabase(db *repository.Database) Store {
	return Store{
		Events:       db.Events,
		Teams:        db.Teams,
		Participants: db.Participants,
		Venues:       db.Venues,
		Stats:        db.Stats,
		Results:      db.Results,
	}
}

// Feed is the ESPN-style scoreboard provider
type Feed interface {
	FetchScoreboard(ctx context.Context, sportPath string, from, to time.Time) (*models.ESPNScoreboard, []byte, error)
	FetchSummary(ctx context.Context, sportPath, eventID string) (*models.ESPNSummary, []byte, error)
}

// EventStateChange is the payload published on events.{sport}
type EventStateChange struct {
	ID        int64             `json:"id"`
	Sport     models.Sport      `json:"sport"`
	EventID   string            `json:"event_id"`
	Name      string            `json:"name"`
	From      models.EventState `json:"from"`
	To        models.EventState `json:"to"`
	HomeScore *int32            `json:"home_score,omitempty"`
	AwayScore *int32            `json:"away_score,omitempty"`
}

// syncer holds what every job shares
type syncer struct {
	sport    models.Sport
	store    Store
	bus      notify.Bus
	archiver archive.Archiver
}

func newSyncer(sport models.Sport, store Store, bus notify.Bus, archiver archive.Archiver) syncer {
	if archiver == nil {
		archiver = archive.Nop{}
	}
	return syncer{sport: sport, store: store, bus: bus, archiver: archiver}
}

func (s *syncer) Sport() models.Sport { return s.sport }

// archive stores a raw payload; failures are logged only
func (s *syncer) archive(ctx context.Context, name string, raw []byte) {
	if err := s.archiver.Archive(ctx, string(s.sport), name, raw); err != nil {
		metrics.RecordError("archive", "put")
		log.Warn().Err(err).Str("sport", string(s.sport)).Str("name", name).Msg("Failed to archive payload")
	}
}

func (s *syncer) skip(res *Result, reason string, err error) {
	res.Skipped++
	metrics.RecordSkipped(string(s.sport), reason)
	log.Warn().Err(err).Str("sport", string(s.sport)).Str("reason", reason).Msg("Skipping provider record")
}

func (s *syncer) resolveTeam(ctx context.Context, c *models.ESPNCompetitor) (sql.NullInt64, error) {
	if c == nil {
		return sql.NullInt64{}, nil
	}
	team := c.ToTeam(s.sport)
	if team == nil {
		return sql.NullInt64{}, nil
	}
	if err := s.store.Teams.Upsert(ctx, team); err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: team.ID, Valid: true}, nil
}

func (s *syncer) resolveVenue(ctx context.Context, v *models.Venue) (sql.NullInt64, error) {
	if v == nil {
		return sql.NullInt64{}, nil
	}
	if err := s.store.Venues.Upsert(ctx, v); err != nil {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: v.ID, Valid: true}, nil
}

// resolveParticipants upserts the golfer, player or horse behind each row
func (s *syncer) resolveParticipants(ctx context.Context, results []*models.EventResult) error {
	for _, r := range results {
		if r.ParticipantKey == "" {
			continue
		}
		p := &models.Participant{
			Sport:       s.sport,
			Kind:        r.ParticipantKind,
			ProviderKey: r.ParticipantKey,
			Name:        r.Name,
		}
		if err := s.store.Participants.Upsert(ctx, p); err != nil {
			return fmt.Errorf("participant %s: %w", r.ParticipantKey, err)
		}
		r.ParticipantID = sql.NullInt64{Int64: p.ID, Valid: true}
	}
	return nil
}

// upsertEvent writes the event and publishes a notification when its state
// changed since the last run
func (s *syncer) upsertEvent(ctx context.Context, e *models.Event, res *Result) error {
	prev, err := s.store.Events.Upsert(ctx, e)
	if err != nil {
		return err
	}
	res.Upserted++

	if prev == "" || prev == e.State {
		return nil
	}
	res.Transitions++

	log.Info().
		Str("sport", string(e.Sport)).
		Str("event_id", e.EventID).
		Str("from", string(prev)).
		Str("to", string(e.State)).
		Msg("Event state changed")

	if s.bus == nil {
		return nil
	}
	change := EventStateChange{
		ID:      e.ID,
		Sport:   e.Sport,
		EventID: e.EventID,
		Name:    e.Name,
		From:    prev,
		To:      e.State,
	}
	if e.HomeScore.Valid {
		change.HomeScore = &e.HomeScore.Int32
	}
	if e.AwayScore.Valid {
		change.AwayScore = &e.AwayScore.Int32
	}
	if _, err := s.bus.Publish(ctx, notify.EventTopic(string(e.Sport)), notify.KindEventState, change); err != nil && !errors.Is(err, notify.ErrClosed) {
		log.Warn().Err(err).Str("event_id", e.EventID).Msg("Failed to publish event state change")
	}
	return nil
}

func (s *syncer) replaceResults(ctx context.Context, e *models.Event, results []*models.EventResult, res *Result) {
	if len(results) == 0 {
		return
	}
	// The event is already counted as upserted; failures here are logged
	// and retried next run rather than counted as a skip
	if err := s.resolveParticipants(ctx, results); err != nil {
		s.resultsFailed(e, err)
		return
	}
	if err := s.store.Results.ReplaceForEvent(ctx, e.ID, results); err != nil {
		s.resultsFailed(e, err)
		return
	}
	res.ResultsReplaced++
	metrics.RecordStatsReplaced(string(s.sport))
}

func (s *syncer) resultsFailed(e *models.Event, err error) {
	metrics.RecordError("reconciler", "results_replace")
	log.Error().
		Err(err).
		Str("sport", string(s.sport)).
		Str("event_id", e.EventID).
		Msg("Failed to store event results")
}
