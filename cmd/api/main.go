package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/saffronhouse/orders-backend/api/routes"
	"github.com/saffronhouse/orders-backend/internal/analytics"
	"github.com/saffronhouse/orders-backend/internal/notifications"
	"github.com/saffronhouse/orders-backend/internal/orders"
	"github.com/saffronhouse/orders-backend/internal/realtime"
	phonepewebhook "github.com/saffronhouse/orders-backend/internal/webhooks/phonepe"
	"github.com/saffronhouse/orders-backend/pkg/config"
	"github.com/saffronhouse/orders-backend/pkg/db"
	"github.com/saffronhouse/orders-backend/pkg/logger"
	"github.com/saffronhouse/orders-backend/pkg/mailer"
	"github.com/saffronhouse/orders-backend/pkg/metrics"
	"github.com/saffronhouse/orders-backend/pkg/migrate"
	"github.com/saffronhouse/orders-backend/pkg/phonepe"
	"github.com/saffronhouse/orders-backend/pkg/redis"
	"github.com/saffronhouse/orders-backend/pkg/whatsapp"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		FilePath:    cfg.App.LogFile,
	})
	defer logg.Close()

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Business.Location()
	if err != nil {
		return err
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	hub := realtime.NewHub(logg, realtime.WithDropRecorder(orderMetrics))
	var emitter realtime.Emitter = hub
	var bridge *realtime.RedisBridge
	if cfg.Realtime.RedisBridge {
		bridge, err = realtime.NewRedisBridge(redisClient, hub, cfg.Realtime.Channel, logg)
		if err != nil {
			return err
		}
		emitter = bridge
	}

	var gateway orders.PaymentGateway
	var ppClient *phonepe.Client
	if cfg.PhonePe.Enabled() {
		ppClient, err = phonepe.NewClient(
			phonepe.SettingsFromConfig(cfg.PhonePe),
			phonepe.WithTimeout(cfg.PhonePe.Timeout),
			phonepe.WithObserver(orderMetrics),
		)
		if err != nil {
			return err
		}
		gateway = ppClient
	} else {
		logg.Warn(ctx, "phonepe credentials missing, online payments disabled")
	}

	catalog, err := loadCatalog(cfg.WhatsApp)
	if err != nil {
		return err
	}
	messenger := whatsapp.NewClient(
		whatsapp.SettingsFromConfig(cfg.WhatsApp),
		whatsapp.WithTimeout(cfg.WhatsApp.Timeout),
		whatsapp.WithObserver(orderMetrics),
	)
	if !messenger.Enabled() {
		logg.Warn(ctx, "whatsapp credentials missing, messages will be skipped")
	}
	notifier, err := notifications.NewDispatcher(notifications.Params{
		Messenger: messenger,
		Catalog:   catalog,
		Mailer:    mailer.New(cfg.SMTP),
		Metrics:   orderMetrics,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	analyticsService, err := analytics.NewService(dbClient, loc)
	if err != nil {
		return err
	}

	orderService, err := orders.NewService(orders.Params{
		Repo:          orders.NewRepository(dbClient.DB()),
		Tx:            dbClient,
		Payments:      gateway,
		Notifier:      notifier,
		Analytics:     analyticsService,
		Events:        emitter,
		Metrics:       orderMetrics,
		Logger:        logg,
		KitchenPhones: cfg.WhatsApp.KitchenPhones,
	})
	if err != nil {
		return err
	}

	webhookService, err := phonepewebhook.NewService(orderService)
	if err != nil {
		return err
	}
	guard, err := phonepewebhook.NewIdempotencyGuard(redisClient, cfg.PhonePe.WebhookTTL, "")
	if err != nil {
		return err
	}

	handler := routes.NewRouter(routes.Dependencies{
		Config:       cfg,
		Logger:       logg,
		DB:           dbClient,
		Cache:        redisClient,
		Orders:       orderService,
		Analytics:    analyticsService,
		Webhooks:     webhookService,
		WebhookGuard: guard,
		PhonePe:      ppClient,
		Realtime:     realtime.NewHandler(hub, cfg.App.CORSOrigins, cfg.Realtime.BufferSize, logg),
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		BusinessZone: loc,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"phonepe":  cfg.PhonePe.Enabled(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if bridge != nil {
		group.Go(func() error {
			if err := bridge.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-gctx.Done()
		logg.Info(ctx, "api server shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func loadCatalog(cfg config.WhatsAppConfig) (*whatsapp.Catalog, error) {
	if cfg.TemplatesFile == "" {
		return whatsapp.DefaultCatalog()
	}
	return whatsapp.LoadCatalog(cfg.TemplatesFile)
}
