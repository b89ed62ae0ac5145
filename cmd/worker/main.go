package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"tipsterarena/backend/internal/api"
	"tipsterarena/backend/internal/archive"
	"tipsterarena/backend/internal/badges"
	"tipsterarena/backend/internal/cache"
	"tipsterarena/backend/internal/client"
	"tipsterarena/backend/internal/config"
	"tipsterarena/backend/internal/logging"
	"tipsterarena/backend/internal/metrics"
	"tipsterarena/backend/internal/notify"
	"tipsterarena/backend/internal/reconciler"
	"tipsterarena/backend/internal/repository"
	"tipsterarena/backend/internal/scheduler"
	"tipsterarena/backend/internal/tipsters"
)

func main() {
	cfg := config.MustLoad()
	logging.Setup(cfg.AppEnv, cfg.LogLevel)

	log.Info().
		Str("env", cfg.AppEnv).
		Int("http_port", cfg.HTTPPort).
		Msg("Starting Tipster Arena worker")

	// Create context that listens for cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Received shutdown signal, gracefully shutting down...")
		cancel()
	}()

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

	if cfg.DatabaseAutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
	}

	// Redis backs the notification bus and the reconcile locks when
	// available; otherwise both stay in process
	var (
		bus    notify.Bus
		locker reconciler.Locker
	)
	if cfg.RedisEnabled {
		redisCache, err := cache.NewRedisCache(ctx, cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to Redis - continuing with in-process bus and locks")
		} else {
			defer redisCache.Close()
			bus = notify.NewRedisBus(redisCache.Client(), cfg.NotifyHistorySize)
			locker = redisCache
		}
	}
	if bus == nil {
		bus = notify.NewMemoryBus(cfg.NotifyHistorySize)
		locker = reconciler.NewLocalLocker()
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
	if !racing.Configured() {
		log.Warn().Msg("RACING_SCRAPER_CMD not set, racing uses whatever files are already on disk")
	}

	rec := reconciler.New(cfg, db.Events, locker,
		reconciler.DefaultJobs(cfg, feed, racing, reconciler.StoreFromDatabase(db), bus, archiver)...)

	evaluator := badges.NewEvaluator(db.Badges, bus, cfg.BadgeLocation())
	service := tipsters.NewServiceFromDatabase(db, evaluator, bus)

	// Update system uptime and pool metrics
	startTime := time.Now()
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.SystemUptime.Set(time.Since(startTime).Seconds())
				db.PoolStats()
			case <-ctx.Done():
				return
			}
		}
	}()

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.NewServer(ctx, service, db.Events, rec, evaluator, bus, db, cfg.AdminJWTSecret).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			cancel()
		}
	}()

	sched := scheduler.NewScheduler(cfg, rec)
	if cfg.EnableScheduler {
		if err := sched.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start scheduler")
		}
	}

	if cfg.InitialSyncEnabled {
		go func() {
			log.Info().Msg("Running initial reconcile...")
			for _, res := range rec.Run(ctx, nil, reconciler.Options{}) {
				if res.Err != nil {
					log.Error().Err(res.Err).Str("sport", string(res.Sport)).Msg("Initial reconcile failed, continuing anyway...")
				}
			}
		}()
	}

	// Keep running until context is cancelled
	<-ctx.Done()

	log.Info().Msg("Shutting down...")
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	// Closing the bus first ends open notification streams
	_ = bus.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown incomplete")
	}

	log.Info().Msg("Worker shutdown complete")
}
