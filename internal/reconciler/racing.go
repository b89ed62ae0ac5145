package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/archive"
	"tipsterarena/backend/internal/client"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
	"tipsterarena/backend/internal/repository"
)

// RacingSource runs the racecard scraper and reads its output
type RacingSource interface {
	Configured() bool
	Run(ctx context.Context, date time.Time) error
	LoadRacecards(date time.Time) ([]models.RacecardRace, []byte, error)
	LoadResults(date time.Time) ([]models.RaceResult, []byte, error)
}

// RacingJob reconciles racecards and results, one day at a time
type RacingJob struct {
	syncer
	source      RacingSource
	clock       models.RaceClock
	maxAttempts int
	retryDelay  time.Duration
}

func NewRacingJob(source RacingSource, clock models.RaceClock, maxAttempts int, retryDelay time.Duration, store Store, bus notify.Bus, archiver archive.Archiver) *RacingJob {
	if clock.Location == nil {
		clock.Location = time.UTC
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &RacingJob{
		syncer:      newSyncer(models.HorseRacing, store, bus, archiver),
		source:      source,
		clock:       clock,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
	}
}

func (j *RacingJob) Run(ctx context.Context, w Window, opts Options) (*Result, error) {
	res := &Result{Sport: models.HorseRacing}
	var errs []error

	for _, day := range w.Days() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := j.syncDay(ctx, day, res); err != nil {
			errs = append(errs, err)
		}
	}

	return res, errors.Join(errs...)
}

// scrape runs the scraper with bounded retries
func (j *RacingJob) scrape(ctx context.Context, day time.Time) error {
	if !j.source.Configured() {
		return nil
	}

	var err error
	for attempt := 1; attempt <= j.maxAttempts; attempt++ {
		if err = j.source.Run(ctx, day); err == nil {
			return nil
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", j.maxAttempts).
			Str("date", day.Format(client.RacingDateFormat)).
			Msg("Racing scraper failed")

		if attempt < j.maxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(j.retryDelay):
			}
		}
	}
	return err
}

func (j *RacingJob) syncDay(ctx context.Context, day time.Time, res *Result) error {
	date := day.Format(client.RacingDateFormat)
	var errs []error

	// Files from an earlier successful run are still worth reading
	if err := j.scrape(ctx, day); err != nil {
		errs = append(errs, fmt.Errorf("scraper %s: %w", date, err))
	}

	results, raw, err := j.source.LoadResults(day)
	j.archive(ctx, "results "+date, raw)
	if err != nil {
		errs = append(errs, fmt.Errorf("results %s: %w", date, err))
	}

	settled := make(map[string]bool, len(results))
	for i := range results {
		r := &results[i]
		settled[models.RaceKey(r.RaceID, r.Course, orDate(r.Date, date), r.OffTime)] = true
	}

	races, raw, err := j.source.LoadRacecards(day)
	j.archive(ctx, "racecards "+date, raw)
	if err != nil {
		errs = append(errs, fmt.Errorf("racecards %s: %w", date, err))
	}

	for i := range races {
		race := &races[i]
		res.Fetched++
		if settled[models.RaceKey(race.RaceID, race.Course, orDate(race.Date, date), race.OffTime)] {
			continue
		}
		if err := j.syncRacecard(ctx, date, race, res); err != nil {
			j.skip(res, "invalid_race", err)
		}
	}

	for i := range results {
		res.Fetched++
		if err := j.syncResult(ctx, date, &results[i], res); err != nil {
			j.skip(res, "invalid_result", err)
		}
	}

	log.Info().
		Str("date", date).
		Int("racecards", len(races)).
		Int("results", len(results)).
		Msg("Racing day reconciled")

	return errors.Join(errs...)
}

func (j *RacingJob) syncRacecard(ctx context.Context, date string, race *models.RacecardRace, res *Result) error {
	event, err := race.ToEvent(date, j.clock)
	if err != nil {
		return err
	}

	// A race already settled is never pushed back to pre by a later racecard
	stored, err := j.store.Events.GetByEventID(ctx, models.HorseRacing, event.EventID)
	switch {
	case err == nil && stored.IsFinal():
		return nil
	case err != nil && !errors.Is(err, repository.ErrNotFound):
		return err
	}

	if event.VenueID, err = j.resolveVenue(ctx, models.RaceVenue(race.CourseID, race.Course, race.Region)); err != nil {
		return err
	}
	if err := j.upsertEvent(ctx, event, res); err != nil {
		return err
	}
	j.replaceResults(ctx, event, race.ToResults(), res)
	return nil
}

func (j *RacingJob) syncResult(ctx context.Context, date string, race *models.RaceResult, res *Result) error {
	event, err := race.ToEvent(date, j.clock)
	if err != nil {
		return err
	}
	if event.VenueID, err = j.resolveVenue(ctx, models.RaceVenue(race.CourseID, race.Course, race.Region)); err != nil {
		return err
	}
	if err := j.upsertEvent(ctx, event, res); err != nil {
		return err
	}
	j.replaceResults(ctx, event, race.ToResults(), res)
	return nil
}

func orDate(d, def string) string {
	if d == "" {
		return def
	}
	return d
}
