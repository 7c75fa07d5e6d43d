package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinora/clinic-scheduling/internal/config"
	"github.com/clinora/clinic-scheduling/internal/db"
	"github.com/clinora/clinic-scheduling/internal/notify"
	"github.com/clinora/clinic-scheduling/internal/scheduling"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Str("service", "reminder-worker").Logger()
	logger.Info().Msg("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	logger.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.ReminderInterval).
		Dur("window", cfg.ReminderWindow).
		Msg("running reminder worker")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	repo := scheduling.NewPgRepository(pgPool)
	notifier := notify.NewLogNotifier(logger)
	svc := scheduling.NewReminderService(repo, notifier, cfg.ReminderWindow, logger)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.ReminderInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

// runOnce isolates each tick so one failing scan never stops the loop.
func runOnce(ctx context.Context, svc *scheduling.ReminderService, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := svc.Run(runCtx); err != nil {
		logger.Error().Err(err).Msg("reminder run error")
		return
	}
	logger.Info().Dur("took", time.Since(start)).Msg("reminder run complete")
}
