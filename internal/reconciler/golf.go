package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/archive"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
)

// GolfJob reconciles tournaments and leaderboards for each configured tour
type GolfJob struct {
	syncer
	feed  Feed
	tours []string
}

func NewGolfJob(feed Feed, tours []string, store Store, bus notify.Bus, archiver archive.Archiver) *GolfJob {
	return &GolfJob{
		syncer: newSyncer(models.Golf, store, bus, archiver),
		feed:   feed,
		tours:  tours,
	}
}

func (j *GolfJob) Run(ctx context.Context, w Window, opts Options) (*Result, error) {
	res := &Result{Sport: models.Golf}
	var errs []error

	for _, tour := range j.tours {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sb, raw, err := j.feed.FetchScoreboard(ctx, "golf/"+tour, w.From, w.To)
		j.archive(ctx, "scoreboard "+tour, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("tour %s: %w", tour, err))
			continue
		}

		competition := sb.LeagueName(tour)
		for i := range sb.Events {
			res.Fetched++
			if err := j.syncTournament(ctx, competition, &sb.Events[i], res); err != nil {
				j.skip(res, "invalid_event", err)
			}
		}

		log.Info().
			Str("tour", tour).
			Int("tournaments", len(sb.Events)).
			Msg("Golf tour reconciled")
	}

	return res, errors.Join(errs...)
}

func (j *GolfJob) syncTournament(ctx context.Context, competition string, ev *models.ESPNEvent, res *Result) error {
	event, err := ev.ToEvent(models.Golf, competition)
	if err != nil {
		return err
	}

	if len(ev.Courses) > 0 {
		if event.VenueID, err = j.resolveVenue(ctx, ev.Courses[0].ToVenue()); err != nil {
			return err
		}
	}

	if err := j.upsertEvent(ctx, event, res); err != nil {
		return err
	}

	comp := ev.PrimaryCompetition()
	if comp == nil {
		return nil
	}
	j.replaceResults(ctx, event, comp.ToLeaderboard(models.Golf), res)
	return nil
}
