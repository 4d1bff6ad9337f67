package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"praxis/internal/engine/metering"
	"praxis/internal/engine/plans"
	"praxis/internal/engine/records"
	"praxis/internal/engine/subscriptions"
	"praxis/internal/pkg/logger"
	"praxis/internal/platform/audit"
	"praxis/internal/platform/config"
	"praxis/internal/platform/database"
	"praxis/internal/platform/repositories"
	"praxis/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	once := flag.String("once", "", "Run a single job and exit: expiry_sweep or usage_reset")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	orgRepo := repositories.NewOrganizationRepository(db)
	subRepo := repositories.NewSubscriptionRepository(db)
	auditLogger := audit.NewLogger(db)
	planSvc := plans.NewService(plans.NewRepository(db), cfg.Billing.Currency)
	statusSvc := subscriptions.NewService(orgRepo, subRepo, auditLogger,
		subscriptions.NewStatusCache(cfg.Billing.StatusCacheSize, cfg.Billing.StatusCacheTTL), cfg.Billing)
	meter := metering.NewService(db, repositories.NewUsageRepository(db), orgRepo, planSvc, statusSvc, records.Counter{})

	sweep := workers.NewExpirySweep(subRepo, auditLogger, nil)
	reset := workers.NewUsageReset(meter)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once != "" {
		jobs := map[string]workers.Job{"expiry_sweep": sweep, "usage_reset": reset}
		job, ok := jobs[*once]
		if !ok {
			log.Fatal().Str("job", *once).Msg("unknown job")
		}
		n, err := job.Run(ctx)
		if err != nil {
			log.Fatal().Err(err).Str("job", *once).Msg("job failed")
		}
		log.Info().Str("job", *once).Int("affected", n).Msg("job finished")
		return
	}

	scheduler, err := workers.NewScheduler(ctx, cfg.Workers, sweep, reset)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to schedule jobs")
	}

	log.Info().Msg("worker starting")
	scheduler.Start()
	<-ctx.Done()

	log.Info().Msg("worker stopping")
	<-scheduler.Stop().Done()
}
