package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"github.com/xeipuuv/gojsonschema"

	"finance-billing-go/internal/billing"
	"finance-billing-go/internal/config"
	"finance-billing-go/internal/database"
	"finance-billing-go/internal/gateway"
	httpserver "finance-billing-go/internal/http"
	"finance-billing-go/internal/logging"
	"finance-billing-go/internal/ratelimit"
	"finance-billing-go/internal/recurring"
	"finance-billing-go/internal/store"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	loader := gojsonschema.NewReferenceLoader("file://./schemas/webhook_event.schema.json")
	webhookSchema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		log.Fatal().Err(err).Msg("webhook schema failed to load")
	}

	obligations := store.NewObligations(db)
	entries := store.NewEntries(db)
	plans := store.NewPlans(db)
	subs := store.NewSubscriptions(db)
	txns := store.NewTransactions(db)
	events := store.NewWebhookEvents(db)

	gw := gateway.NewClient(cfg.GatewayBaseURL, cfg.GatewaySecretKey)

	billingSvc := billing.NewService(subs, txns, plans, gw, cfg.CallbackURL,
		log.With().Str("component", "billing").Logger())
	reconciler := billing.NewReconciler(cfg.WebhookSecret, webhookSchema, billingSvc, txns, events,
		log.With().Str("component", "webhook").Logger())

	processor := recurring.NewProcessor(obligations, entries,
		log.With().Str("component", "processor").Logger())
	scheduler := recurring.NewScheduler(processor, recurring.Config{
		Enabled:           cfg.SchedulerEnabled,
		IntervalMinutes:   cfg.IntervalMinutes,
		BatchSize:         cfg.BatchSize,
		MaxRetries:        cfg.MaxRetries,
		RetryDelayMinutes: cfg.RetryDelayMinutes,
	}, log.With().Str("component", "scheduler").Logger())
	scheduler.Start(context.Background())

	sweeper := billing.NewSweeper(billingSvc, cfg.SweepCronSpec,
		log.With().Str("component", "sweep").Logger())
	if err := sweeper.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("sweep schedule failed")
	}

	webhookLimiter := ratelimit.NewLimiter(
		ratelimit.NewMemoryStore(),
		cfg.WebhookRateLimit,
		time.Duration(cfg.WebhookRateWindowMs)*time.Millisecond,
	)

	r := httpserver.NewServer(cfg, log, httpserver.Deps{
		Obligations:    obligations,
		Entries:        entries,
		Plans:          plans,
		Billing:        billingSvc,
		Reconciler:     reconciler,
		Scheduler:      scheduler,
		WebhookLimiter: webhookLimiter,
	})

	log.Info().Str("port", cfg.Port).Msg("listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
