package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sahilchouksey/course-marketplace/api"
	"github.com/sahilchouksey/course-marketplace/config"
	"github.com/sahilchouksey/course-marketplace/database"
	"github.com/sahilchouksey/course-marketplace/router"
	"github.com/sahilchouksey/course-marketplace/services"
	"github.com/sahilchouksey/course-marketplace/services/cron"
	"github.com/sahilchouksey/course-marketplace/services/digitalocean"
	"github.com/sahilchouksey/course-marketplace/services/events"
	"github.com/sahilchouksey/course-marketplace/services/razorpay"
	"github.com/sahilchouksey/course-marketplace/utils"
	"github.com/sahilchouksey/course-marketplace/utils/auth"
	"github.com/sahilchouksey/course-marketplace/utils/cache"
	"github.com/sahilchouksey/course-marketplace/utils/metrics"
	"github.com/sahilchouksey/course-marketplace/utils/middleware"
)

func SetupAndRunServer() error {
	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	cfg, err := config.Get()
	if err != nil {
		return err
	}
	if err := validate(cfg); err != nil {
		return err
	}

	log := utils.NewLogger(cfg.GoEnv)
	log.Info("starting course marketplace", slog.String("env", cfg.GoEnv))
	metrics.Register()

	// Initialize GORM database connection
	store, err := database.StartGORM(cfg, log)
	if err != nil {
		log.Error("check whether Postgres is running (make docker-up or make db-up)")
		return err
	}
	if err := store.Init(); err != nil {
		log.Error("failed to initialize database tables", slog.Any("error", err))
		return err
	}
	db := store.GetDB()

	publisher := newPublisher(cfg, log)
	reportCache := newReportCache(cfg, log)
	spaces := newSpaces(cfg, log)

	catalog := services.NewCatalogService(db, log)
	gateway := razorpay.NewClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, cfg.Razorpay.Timeout, log)
	purchases := services.NewPurchaseService(db, catalog, gateway, publisher, services.PaymentConfig{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		Currency:  cfg.Razorpay.Currency,
	}, log)
	webhooks := services.NewWebhookService(db, purchases, cfg.Razorpay.WebhookSecret, log)

	var revenueCache services.ReportCache
	if reportCache != nil {
		revenueCache = reportCache
	}
	revenue := services.NewRevenueService(db, revenueCache, cfg.Redis.CacheTTL, log)

	var uploader services.ReportUploader
	var exportStore cron.ExportStore
	if spaces != nil {
		uploader = spaces
		exportStore = spaces
	}
	exporter := services.NewReportExporter(db, uploader, log)

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if cfg.CronEnabled {
		cronManager = cron.NewCronManager(db, webhooks, exportStore, cron.DefaultOptions(), log)
		if err := cronManager.Start(); err != nil {
			// Don't fail the app, just log the warning
			log.Warn("failed to start cron jobs", slog.Any("error", err))
			cronManager = nil
		}
	}

	// Init API
	server := api.NewAPIServer(fmt.Sprintf(":%d", cfg.Port), log)
	router.SetupRoutes(server.GetEngine(), router.Dependencies{
		Store:      store,
		JWTManager: auth.NewJWTManager(auth.JWTConfig{Secret: cfg.JWT.Secret, Expiry: cfg.JWT.Expiry, Issuer: cfg.JWT.Issuer}),
		Security: middleware.SecurityConfig{
			AllowedOrigins:    cfg.AllowedOrigins,
			RateLimitRequests: cfg.RateLimit,
			RateLimitWindow:   cfg.RateLimitWindow,
			RateLimitExempt:   []string{"/api/v1/payments/webhook", "/metrics"},
			Production:        cfg.IsProduction(),
			Logger:            log,
		},
		Catalog:   catalog,
		Purchases: purchases,
		Webhooks:  webhooks,
		Revenue:   revenue,
		Exporter:  exporter,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Run()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-serverErr:
		log.Error("server stopped", slog.Any("error", err))
	case sig := <-stop:
		log.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		if shutdownErr := server.Shutdown(ctx); shutdownErr != nil {
			log.Error("graceful shutdown failed", slog.Any("error", shutdownErr))
		}
		cancel()
	}

	// Stop background work before the connections it uses
	if cronManager != nil {
		cronManager.Stop()
	}
	if err := publisher.Close(); err != nil {
		log.Warn("failed to close event publisher", slog.Any("error", err))
	}
	if reportCache != nil {
		_ = reportCache.Close()
	}
	if closeErr := store.Close(); closeErr != nil {
		log.Warn("failed to close database", slog.Any("error", closeErr))
	}
	return err
}

func validate(cfg *config.Config) error {
	var missing []error
	if cfg.JWT.Secret == "" {
		missing = append(missing, errors.New("JWT_SECRET is not set"))
	}
	if cfg.Razorpay.KeyID == "" || cfg.Razorpay.KeySecret == "" {
		missing = append(missing, errors.New("RAZORPAY_KEY_ID and RAZORPAY_KEY_SECRET are required"))
	}
	if cfg.Razorpay.WebhookSecret == "" {
		missing = append(missing, errors.New("RAZORPAY_WEBHOOK_SECRET is not set"))
	}
	return errors.Join(missing...)
}

func newPublisher(cfg *config.Config, log *slog.Logger) events.Publisher {
	if !cfg.KafkaEnabled() {
		log.Info("no kafka brokers configured, purchase events are not published")
		return events.NoopPublisher{}
	}
	publisher, err := events.NewKafkaPublisher(cfg.Kafka, log)
	if err != nil {
		log.Warn("kafka unavailable, purchase events are not published", slog.Any("error", err))
		return events.NoopPublisher{}
	}
	return publisher
}

func newReportCache(cfg *config.Config, log *slog.Logger) *cache.RedisCache {
	if cfg.Redis.URL == "" {
		return nil
	}
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, "marketplace:")
	if err != nil {
		log.Warn("redis unavailable, revenue dashboards are not cached", slog.Any("error", err))
		return nil
	}
	return redisCache
}

func newSpaces(cfg *config.Config, log *slog.Logger) *digitalocean.SpacesClient {
	spacesCfg := digitalocean.NewSpacesConfig(cfg.Spaces)
	if !spacesCfg.IsConfigured() {
		log.Info("spaces not configured, ledger exports are disabled")
		return nil
	}
	client, err := digitalocean.NewSpacesClient(spacesCfg)
	if err != nil {
		log.Warn("failed to create spaces client, ledger exports are disabled", slog.Any("error", err))
		return nil
	}
	return client
}
