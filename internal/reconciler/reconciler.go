package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/archive"
	"tipsterarena/backend/internal/cache"
	"tipsterarena/backend/internal/config"
	"tipsterarena/backend/internal/metrics"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
)

var (
	// ErrAlreadyRunning means another run of the same sport holds the lock
	ErrAlreadyRunning = errors.New("reconciliation already running")
	// ErrUnknownSport means no job is registered for the sport
	ErrUnknownSport = errors.New("no reconciliation job for sport")
)

// Locker guards a sport against overlapping runs. Implementations return
// cache.ErrLockHeld when the key is taken.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// LocalLocker is an in-process Locker for single-instance deployments
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return nil, cache.ErrLockHeld
	}
	l.held[key] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// LiveCounter reports how many events of a sport are in progress
type LiveCounter interface {
	CountLive(ctx context.Context, sport models.Sport) (int, error)
}

// Reconciler runs the per-sport jobs
type Reconciler struct {
	cfg     *config.Config
	jobs    map[models.Sport]Job
	live    LiveCounter
	locker  Locker
	lockTTL time.Duration
	now     func() time.Time
}

// New creates a reconciler over jobs. A nil locker falls back to an
// in-process lock.
func New(cfg *config.Config, live LiveCounter, locker Locker, jobs ...Job) *Reconciler {
	if locker == nil {
		locker = NewLocalLocker()
	}
	ttl := cfg.ReconcileLockTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	r := &Reconciler{
		cfg:     cfg,
		jobs:    make(map[models.Sport]Job, len(jobs)),
		live:    live,
		locker:  locker,
		lockTTL: ttl,
		now:     time.Now,
	}
	for _, j := range jobs {
		r.jobs[j.Sport()] = j
	}
	return r
}

// Sports lists the registered sports in processing order
func (r *Reconciler) Sports() []models.Sport {
	sports := make([]models.Sport, 0, len(r.jobs))
	for _, s := range models.AllSports {
		if _, ok := r.jobs[s]; ok {
			sports = append(sports, s)
		}
	}
	return sports
}

// Run reconciles each sport in turn. A failing sport does not stop the
// others; its error is reported on its Result.
func (r *Reconciler) Run(ctx context.Context, sports []models.Sport, opts Options) []*Result {
	if len(sports) == 0 {
		sports = r.Sports()
	}

	results := make([]*Result, 0, len(sports))
	for _, sport := range sports {
		if ctx.Err() != nil {
			results = append(results, &Result{Sport: sport, Err: ctx.Err()})
			continue
		}
		results = append(results, r.runSport(ctx, sport, opts))
	}
	return results
}

func (r *Reconciler) runSport(ctx context.Context, sport models.Sport, opts Options) *Result {
	job, ok := r.jobs[sport]
	if !ok {
		return &Result{Sport: sport, Err: fmt.Errorf("%w: %s", ErrUnknownSport, sport)}
	}

	release, err := r.locker.TryLock(ctx, fmt.Sprintf(cache.KeyReconcileLock, sport), r.lockTTL)
	if errors.Is(err, cache.ErrLockHeld) {
		metrics.RecordLockContention(string(sport))
		log.Info().Str("sport", string(sport)).Msg("Reconciliation already running, skipping")
		return &Result{Sport: sport, Err: ErrAlreadyRunning}
	}
	if err != nil {
		metrics.RecordError("reconciler", "lock")
		return &Result{Sport: sport, Err: err}
	}
	defer release()

	day := opts.Date
	if day.IsZero() {
		day = r.now()
	}
	window := WindowFor(r.cfg, sport, day)

	log.Info().
		Str("sport", string(sport)).
		Time("from", window.From).
		Time("to", window.To).
		Bool("force", opts.Force).
		Msg("Starting reconciliation")

	start := time.Now()
	res, err := job.Run(ctx, window, opts)
	if res == nil {
		res = &Result{Sport: sport}
	}
	res.Duration = time.Since(start)
	res.Err = err

	status := "success"
	if err != nil {
		status = "error"
		metrics.RecordError("reconciler", string(sport))
		log.Error().
			Err(err).
			Str("sport", string(sport)).
			Msg("Reconciliation finished with errors")
	}
	metrics.RecordSync(string(sport), status, res.Duration.Seconds())
	metrics.RecordEventsUpserted(string(sport), res.Upserted)

	log.Info().
		Str("sport", string(sport)).
		Int("fetched", res.Fetched).
		Int("upserted", res.Upserted).
		Int("skipped", res.Skipped).
		Int("stats_replaced", res.StatsReplaced).
		Int("results_replaced", res.ResultsReplaced).
		Int("transitions", res.Transitions).
		Dur("duration", res.Duration).
		Msg("Reconciliation completed")

	return res
}

// RunLive reconciles only the sports that currently have events in progress
func (r *Reconciler) RunLive(ctx context.Context) []*Result {
	var live []models.Sport
	for _, sport := range r.Sports() {
		n, err := r.live.CountLive(ctx, sport)
		if err != nil {
			log.Warn().Err(err).Str("sport", string(sport)).Msg("Failed to count live events")
			continue
		}
		metrics.SetLiveEvents(string(sport), n)
		if n > 0 {
			live = append(live, sport)
		}
	}

	if len(live) == 0 {
		log.Debug().Msg("No live events")
		return nil
	}
	return r.Run(ctx, live, Options{})
}

// DefaultJobs builds one job per sport from cfg
func DefaultJobs(cfg *config.Config, feed Feed, racing RacingSource, store Store, bus notify.Bus, archiver archive.Archiver) []Job {
	return []Job{
		NewFootballJob(feed, cfg.FootballLeagues, store, bus, archiver),
		NewGolfJob(feed, cfg.GolfTours, store, bus, archiver),
		NewTennisJob(feed, cfg.TennisTours, store, bus, archiver),
		NewRacingJob(racing, cfg.RacingClock(), cfg.RacingMaxAttempts, cfg.RacingRetryDelay, store, bus, archiver),
	}
}
