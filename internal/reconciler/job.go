// Package reconciler pulls fixtures, results and statistics from the external
// feeds and upserts them into canonical events. Running it twice on the same
// provider output leaves the database unchanged.
package reconciler

import (
	"context"
	"time"

	"tipsterarena/backend/internal/config"
	"tipsterarena/backend/internal/models"
)

// Job reconciles one sport
type Job interface {
	Sport() models.Sport
	Run(ctx context.Context, w Window, opts Options) (*Result, error)
}

// Options control a reconciliation run
type Options struct {
	// Force refetches summaries even for completed events that already have stats
	Force bool
	// Date centres the window; zero means today
	Date time.Time
}

// Result summarizes one sport's run
type Result struct {
	Sport           models.Sport  `json:"sport"`
	Fetched         int           `json:"fetched"`
	Upserted        int           `json:"upserted"`
	Skipped         int           `json:"skipped"`
	StatsReplaced   int           `json:"stats_replaced"`
	ResultsReplaced int           `json:"results_replaced"`
	Transitions     int           `json:"transitions"`
	Duration        time.Duration `json:"duration"`
	Err             error         `json:"-"`
}

// Window is the inclusive day range a run covers
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow returns [day - back, day + forward] on UTC day boundaries
func NewWindow(day time.Time, back, forward int) Window {
	d := day.UTC()
	d = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return Window{
		From: d.AddDate(0, 0, -back),
		To:   d.AddDate(0, 0, forward),
	}
}

// Days lists every day in the window
func (w Window) Days() []time.Time {
	var days []time.Time
	for d := w.From; !d.After(w.To); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// WindowFor returns the configured horizon for sport around day
func WindowFor(cfg *config.Config, sport models.Sport, day time.Time) Window {
	switch sport {
	case models.Football:
		return NewWindow(day, cfg.FootballDaysBack, cfg.FootballDaysForward)
	case models.Golf:
		return NewWindow(day, cfg.GolfDaysBack, cfg.GolfDaysForward)
	case models.Tennis:
		return NewWindow(day, cfg.TennisDaysBack, cfg.TennisDaysForward)
	case models.HorseRacing:
		return NewWindow(day, cfg.RacingDaysBack, cfg.RacingDaysForward)
	}
	return NewWindow(day, 0, 0)
}
