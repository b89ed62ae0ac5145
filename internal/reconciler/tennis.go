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

// TennisJob reconciles individual matches for each configured tour. Every
// match is stored as its own event, named after its tournament and draw.
type TennisJob struct {
	syncer
	feed  Feed
	tours []string
}

func NewTennisJob(feed Feed, tours []string, store Store, bus notify.Bus, archiver archive.Archiver) *TennisJob {
	return &TennisJob{
		syncer: newSyncer(models.Tennis, store, bus, archiver),
		feed:   feed,
		tours:  tours,
	}
}

func (j *TennisJob) Run(ctx context.Context, w Window, opts Options) (*Result, error) {
	res := &Result{Sport: models.Tennis}
	var errs []error

	for _, tour := range j.tours {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		sb, raw, err := j.feed.FetchScoreboard(ctx, "tennis/"+tour, w.From, w.To)
		j.archive(ctx, "scoreboard "+tour, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("tour %s: %w", tour, err))
			continue
		}

		matches := 0
		for i := range sb.Events {
			ev := &sb.Events[i]
			tournament := ev.Name
			if tournament == "" {
				tournament = sb.LeagueName(tour)
			}

			for k := range ev.Competitions {
				matches++
				j.syncMatch(ctx, tournament, "", ev, &ev.Competitions[k], res)
			}
			for _, g := range ev.Groupings {
				for k := range g.Competitions {
					matches++
					j.syncMatch(ctx, tournament, g.Grouping.DisplayName, ev, &g.Competitions[k], res)
				}
			}
		}

		log.Info().
			Str("tour", tour).
			Int("matches", matches).
			Msg("Tennis tour reconciled")
	}

	return res, errors.Join(errs...)
}

func (j *TennisJob) syncMatch(ctx context.Context, tournament, draw string, ev *models.ESPNEvent, match *models.ESPNCompetition, res *Result) {
	res.Fetched++

	err := func() error {
		event, err := match.ToMatchEvent(models.Tennis, tournament, draw)
		if err != nil {
			return err
		}

		if match.Venue != nil {
			if event.VenueID, err = j.resolveVenue(ctx, match.Venue.ToVenue()); err != nil {
				return err
			}
		} else if len(ev.Courses) > 0 {
			if event.VenueID, err = j.resolveVenue(ctx, ev.Courses[0].ToVenue()); err != nil {
				return err
			}
		}

		if err := j.upsertEvent(ctx, event, res); err != nil {
			return err
		}
		j.replaceResults(ctx, event, match.ToMatchResults(models.Tennis), res)
		return nil
	}()
	if err != nil {
		j.skip(res, "invalid_match", err)
	}
}
