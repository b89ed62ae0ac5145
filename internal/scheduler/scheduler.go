package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/config"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/reconciler"
)

// Runner is the part of the reconciler the scheduler drives
type Runner interface {
	Sports() []models.Sport
	Run(ctx context.Context, sports []models.Sport, opts reconciler.Options) []*reconciler.Result
	RunLive(ctx context.Context) []*reconciler.Result
}

// Scheduler runs the per-sport reconcile crons and polls live events.
// Live polling only touches sports that currently have in-progress events.
type Scheduler struct {
	cfg      *config.Config
	runner   Runner
	cron     *cron.Cron
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *config.Config, runner Runner) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		// A slow run of one sport must not stack up behind itself
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		stopChan: make(chan struct{}),
	}
}

// Schedules returns the cron expression for each sport
func Schedules(cfg *config.Config) map[models.Sport]string {
	return map[models.Sport]string{
		models.Football:    cfg.FootballCron,
		models.Golf:        cfg.GolfCron,
		models.Tennis:      cfg.TennisCron,
		models.HorseRacing: cfg.RacingCron,
	}
}

// Start registers the crons and starts live polling
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	schedules := Schedules(s.cfg)
	for _, sport := range s.runner.Sports() {
		expr := schedules[sport]
		if expr == "" {
			log.Warn().Str("sport", string(sport)).Msg("No schedule configured, sport only runs on demand")
			continue
		}

		sport := sport
		if _, err := s.cron.AddFunc(expr, func() {
			log.Info().Str("sport", string(sport)).Msg("Running scheduled reconcile...")
			s.runner.Run(ctx, []models.Sport{sport}, reconciler.Options{})
		}); err != nil {
			return fmt.Errorf("failed to schedule %s reconcile %q: %w", sport, expr, err)
		}

		log.Info().
			Str("sport", string(sport)).
			Str("schedule", expr).
			Msg("Reconcile scheduled")
	}

	s.cron.Start()

	if s.cfg.LivePollInterval > 0 {
		s.ticker = time.NewTicker(s.cfg.LivePollInterval)
		log.Info().
			Dur("interval", s.cfg.LivePollInterval).
			Msg("Live event polling started")

		s.wg.Add(1)
		go s.pollLive(ctx)
	}

	return nil
}

// Stop stops the crons and waits for the live poller to exit
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		log.Info().Msg("Stopping scheduler...")

		<-s.cron.Stop().Done()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopChan)
		s.wg.Wait()

		log.Info().Msg("Scheduler stopped")
	})
}

func (s *Scheduler) pollLive(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Context cancelled, stopping live polling")
			return
		case <-s.stopChan:
			return
		case <-s.ticker.C:
			start := time.Now()
			results := s.runner.RunLive(ctx)
			if len(results) > 0 {
				log.Info().
					Int("sports", len(results)).
					Dur("duration", time.Since(start)).
					Msg("Live polling complete")
			}
		}
	}
}
