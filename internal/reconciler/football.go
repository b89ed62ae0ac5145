package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/archive"
	"tipsterarena/backend/internal/metrics"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
)

// FootballJob reconciles fixtures, scores, box scores and key events for each
// configured league
type FootballJob struct {
	syncer
	feed    Feed
	leagues []string
}

func NewFootballJob(feed Feed, leagues []string, store Store, bus notify.Bus, archiver archive.Archiver) *FootballJob {
	return &FootballJob{
		syncer:  newSyncer(models.Football, store, bus, archiver),
		feed:    feed,
		leagues: leagues,
	}
}

func (j *FootballJob) Run(ctx context.Context, w Window, opts Options) (*Result, error) {
	res := &Result{Sport: models.Football}
	var errs []error

	for _, league := range j.leagues {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		path := "soccer/" + league
		sb, raw, err := j.feed.FetchScoreboard(ctx, path, w.From, w.To)
		j.archive(ctx, "scoreboard "+league, raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("league %s: %w", league, err))
			continue
		}

		competition := sb.LeagueName(league)
		for i := range sb.Events {
			res.Fetched++
			if err := j.syncEvent(ctx, path, competition, &sb.Events[i], opts, res); err != nil {
				j.skip(res, "invalid_event", err)
			}
		}

		log.Info().
			Str("league", league).
			Int("events", len(sb.Events)).
			Msg("Football league reconciled")
	}

	return res, errors.Join(errs...)
}

func (j *FootballJob) syncEvent(ctx context.Context, path, competition string, ev *models.ESPNEvent, opts Options, res *Result) error {
	event, err := ev.ToEvent(models.Football, competition)
	if err != nil {
		return err
	}

	comp := ev.PrimaryCompetition()
	var homeKey, awayKey string
	if comp != nil {
		home, away := comp.Home(), comp.Away()
		if event.HomeTeamID, err = j.resolveTeam(ctx, home); err != nil {
			return err
		}
		if event.AwayTeamID, err = j.resolveTeam(ctx, away); err != nil {
			return err
		}
		if home != nil {
			homeKey = home.ProviderID()
		}
		if away != nil {
			awayKey = away.ProviderID()
		}
		if comp.Venue != nil {
			if event.VenueID, err = j.resolveVenue(ctx, comp.Venue.ToVenue()); err != nil {
				return err
			}
		}
	}

	if err := j.upsertEvent(ctx, event, res); err != nil {
		return err
	}

	if !event.State.HasStarted() {
		return nil
	}

	// A finished match's stats do not change once stored. The event is
	// already counted as upserted, so later failures are logged, not returned.
	if event.IsFinal() && !opts.Force {
		n, err := j.store.Stats.CountForEvent(ctx, event.ID)
		if err != nil {
			metrics.RecordError("reconciler", "stats_count")
			log.Warn().
				Err(err).
				Str("event_id", event.EventID).
				Msg("Failed to count stored stats, refetching summary")
		} else if n > 0 {
			return nil
		}
	}

	summary, raw, err := j.feed.FetchSummary(ctx, path, event.EventID)
	j.archive(ctx, "summary "+event.EventID, raw)
	if err != nil {
		// The event itself is already stored; stats are retried next run
		metrics.RecordError("reconciler", "summary")
		log.Warn().
			Err(err).
			Str("event_id", event.EventID).
			Msg("Failed to fetch match summary")
		return nil
	}

	stats := summary.ToStats(homeKey, awayKey)
	for _, st := range stats {
		switch st.Side {
		case "home":
			st.TeamID = event.HomeTeamID
		case "away":
			st.TeamID = event.AwayTeamID
		}
	}
	keyEvents := summary.ToKeyEvents(homeKey, awayKey)
	if len(stats) == 0 && len(keyEvents) == 0 {
		return nil
	}

	if err := j.store.Stats.ReplaceForEvent(ctx, event.ID, stats, keyEvents); err != nil {
		metrics.RecordError("reconciler", "stats_replace")
		log.Error().
			Err(err).
			Str("event_id", event.EventID).
			Msg("Failed to store match stats")
		return nil
	}
	res.StatsReplaced++
	metrics.RecordStatsReplaced(string(models.Football))
	return nil
}
