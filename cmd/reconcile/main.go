// Command reconcile runs one reconciliation pass by hand and prints what it
// did. Locks are in process, so do not run it alongside a worker without
// Redis.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/archive"
	"tipsterarena/backend/internal/cache"
	"tipsterarena/backend/internal/client"
	"tipsterarena/backend/internal/config"
	"tipsterarena/backend/internal/logging"
	"tipsterarena/backend/internal/models"
	"tipsterarena/backend/internal/notify"
	"tipsterarena/backend/internal/reconciler"
	"tipsterarena/backend/internal/repository"
)

func main() {
	sportsFlag := flag.String("sport", "", "comma-separated sports to reconcile (default: all)")
	dateFlag := flag.String("date", "", "centre the window on this day, YYYY-MM-DD (default: today)")
	force := flag.Bool("force", false, "refetch summaries for completed events that already have stats")
	flag.Parse()

	cfg := config.MustLoad()
	logging.Setup(cfg.AppEnv, cfg.LogLevel)

	sports, err := parseSports(*sportsFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -sport")
	}
	opts := reconciler.Options{Force: *force}
	if *dateFlag != "" {
		opts.Date, err = time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -date, expected YYYY-MM-DD")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	log.Info().Msg("Validating service health...")
	if err := db.Health(ctx); err != nil {
		log.Fatal().Err(err).Msg("Database health check failed")
	}

	// Share the worker's lock and bus when Redis is reachable
	var (
		bus    notify.Bus = notify.NewMemoryBus(cfg.NotifyHistorySize)
		locker reconciler.Locker
	)
	if cfg.RedisEnabled {
		if redisCache, err := cache.NewRedisCache(ctx, cfg); err == nil {
			defer redisCache.Close()
			bus = notify.NewRedisBus(redisCache.Client(), cfg.NotifyHistorySize)
			locker = redisCache
		} else {
			log.Warn().Err(err).Msg("Redis unavailable, using in-process lock")
		}
	}
	defer bus.Close()

	archiver, err := archive.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure raw payload archive")
	}

	feed := client.NewClient(client.Options{
		BaseURL:     cfg.ESPNBaseURL,
		Timeout:     cfg.ProviderTimeout,
		MaxRetries:  cfg.ProviderMaxRetries,
		Concurrency: cfg.ProviderConcurrency,
	})
	racing := client.NewRacingScraper(cfg.RacingBaseDir, cfg.RacingScraperCmd, cfg.RacingScraperTimeout)

	rec := reconciler.New(cfg, db.Events, locker,
		reconciler.DefaultJobs(cfg, feed, racing, reconciler.StoreFromDatabase(db), bus, archiver)...)

	failed := 0
	for _, res := range rec.Run(ctx, sports, opts) {
		status := "ok"
		if res.Err != nil {
			status = "error: " + res.Err.Error()
			failed++
		}
		fmt.Printf("%-13s fetched=%-4d upserted=%-4d skipped=%-3d stats=%-3d results=%-3d transitions=%-3d %-8s %s\n",
			res.Sport, res.Fetched, res.Upserted, res.Skipped, res.StatsReplaced, res.ResultsReplaced,
			res.Transitions, res.Duration.Round(time.Millisecond), status)
	}

	if failed > 0 {
		log.Error().Int("failed", failed).Msg("Reconcile finished with failures")
		os.Exit(1)
	}
}

func parseSports(s string) ([]models.Sport, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var sports []models.Sport
	for _, name := range strings.Split(s, ",") {
		sport, err := models.ParseSport(name)
		if err != nil {
			return nil, err
		}
		sports = append(sports, sport)
	}
	return sports, nil
}
