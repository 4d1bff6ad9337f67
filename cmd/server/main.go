package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"praxis/internal/api"
	"praxis/internal/api/handlers"
	"praxis/internal/api/middleware"
	"praxis/internal/engine/gateway"
	"praxis/internal/engine/metering"
	"praxis/internal/engine/orchestrator"
	"praxis/internal/engine/plans"
	"praxis/internal/engine/reconciler"
	"praxis/internal/engine/records"
	"praxis/internal/engine/subscriptions"
	"praxis/internal/pkg/logger"
	"praxis/internal/platform/audit"
	"praxis/internal/platform/auth"
	"praxis/internal/platform/config"
	"praxis/internal/platform/database"
	"praxis/internal/platform/repositories"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
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

	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Repositories
	orgRepo := repositories.NewOrganizationRepository(db)
	userRepo := repositories.NewUserRepository(db)
	subRepo := repositories.NewSubscriptionRepository(db)
	paymentRepo := repositories.NewPaymentRepository(db)
	usageRepo := repositories.NewUsageRepository(db)
	auditLogger := audit.NewLogger(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
	planSvc := plans.NewService(plans.NewRepository(db), cfg.Billing.Currency)
	cache := subscriptions.NewStatusCache(cfg.Billing.StatusCacheSize, cfg.Billing.StatusCacheTTL)
	statusSvc := subscriptions.NewService(orgRepo, subRepo, auditLogger, cache, cfg.Billing)
	meter := metering.NewService(db, usageRepo, orgRepo, planSvc, statusSvc, records.Counter{})
	recordSvc := records.NewService(meter, userRepo)

	var gw gateway.Gateway = gateway.Unconfigured{}
	if cfg.Stripe.APIKey != "" {
		gw = gateway.NewStripeGateway(cfg.Stripe.APIKey, cfg.Billing.GatewayTimeout)
	} else {
		log.Warn().Msg("stripe api key not set, card payments disabled")
	}
	prices := gateway.NewPriceBook(cfg.Stripe.Prices)
	orch := orchestrator.NewService(db, orgRepo, subRepo, paymentRepo, planSvc, gw, prices, auditLogger, statusSvc, cfg.Billing)
	rec := reconciler.New(reconciler.NewVerifier(cfg.Stripe.WebhookSecret), subRepo, orgRepo, auditLogger, prices, planSvc, statusSvc,
		reconciler.NewDedupWindow(cfg.Billing.WebhookDedupSize, cfg.Billing.WebhookDedupTTL))

	router := api.NewRouter(&api.Dependencies{
		AuthHandler:       handlers.NewAuthHandler(userRepo, tokenSvc),
		OrgHandler:        handlers.NewOrgHandler(db, orgRepo, userRepo, meter, tokenSvc),
		UserHandler:       handlers.NewUserHandler(recordSvc),
		RecordsHandler:    handlers.NewRecordsHandler(recordSvc),
		BillingHandler:    handlers.NewBillingHandler(statusSvc, subRepo, planSvc, meter, orch),
		AuditHandler:      handlers.NewAuditHandler(auditLogger),
		AdminHandler:      handlers.NewAdminHandler(planSvc, orch, statusSvc, auditLogger),
		WebhookHandler:    handlers.NewWebhookHandler(rec),
		HealthHandler:     handlers.NewHealthHandler(db),
		MetricsHandler:    handlers.NewMetricsHandler(),
		PagesHandler:      handlers.NewPagesHandler(),
		AuthMiddleware:    middleware.NewAuthMiddleware(tokenSvc),
		TenantMiddleware:  middleware.NewTenantMiddleware(orgRepo),
		SubscriptionGuard: middleware.NewSubscriptionGuard(statusSvc),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
