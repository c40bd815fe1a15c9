package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/saffronhouse/orders-backend/internal/analytics"
	"github.com/saffronhouse/orders-backend/internal/cron"
	"github.com/saffronhouse/orders-backend/internal/notifications"
	"github.com/saffronhouse/orders-backend/internal/orders"
	"github.com/saffronhouse/orders-backend/internal/realtime"
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

const lockName = "cron-worker:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		FilePath:    cfg.App.LogFile,
	})

	if !cfg.PhonePe.Enabled() {
		logg.Warn(context.Background(), "phonepe credentials missing, nothing to sweep")
		return
	}

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	orderService, err := newOrderService(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(redisClient, cfg.App.Env), 2*cfg.Cron.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	sweep, err := cron.NewPaymentSweepJob(cron.PaymentSweepJobParams{
		Logger:     logg,
		Orders:     orderService,
		StaleAfter: cfg.Cron.StaleAfter,
		BatchSize:  cfg.Cron.BatchSize,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payment sweep job", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   cron.NewRegistry(sweep),
		Lock:       lock,
		Metrics:    metricsCollector,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

// newOrderService wires the order service the sweep settles payments through.
// Events reach websocket clients only through the redis bridge, since this
// process serves none itself.
func newOrderService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (orders.Service, error) {
	loc, err := cfg.Business.Location()
	if err != nil {
		return nil, err
	}

	gateway, err := phonepe.NewClient(phonepe.SettingsFromConfig(cfg.PhonePe), phonepe.WithTimeout(cfg.PhonePe.Timeout))
	if err != nil {
		return nil, err
	}

	var emitter realtime.Emitter = realtime.NopEmitter{}
	if cfg.Realtime.RedisBridge {
		bridge, err := realtime.NewRedisBridge(redisClient, realtime.NewHub(logg), cfg.Realtime.Channel, logg)
		if err != nil {
			return nil, err
		}
		emitter = bridge
	}

	var catalog *whatsapp.Catalog
	if cfg.WhatsApp.TemplatesFile != "" {
		if catalog, err = whatsapp.LoadCatalog(cfg.WhatsApp.TemplatesFile); err != nil {
			return nil, err
		}
	}
	notifier, err := notifications.NewDispatcher(notifications.Params{
		Messenger: whatsapp.NewClient(whatsapp.SettingsFromConfig(cfg.WhatsApp), whatsapp.WithTimeout(cfg.WhatsApp.Timeout)),
		Catalog:   catalog,
		Mailer:    mailer.New(cfg.SMTP),
		Logger:    logg,
	})
	if err != nil {
		return nil, err
	}

	analyticsService, err := analytics.NewService(dbClient, loc)
	if err != nil {
		return nil, err
	}

	return orders.NewService(orders.Params{
		Repo:          orders.NewRepository(dbClient.DB()),
		Tx:            dbClient,
		Payments:      gateway,
		Notifier:      notifier,
		Analytics:     analyticsService,
		Events:        emitter,
		Logger:        logg,
		KitchenPhones: cfg.WhatsApp.KitchenPhones,
	})
}

func lockKey(client *redis.Client, env string) string {
	if env == "" {
		env = "local"
	}
	return client.LockKey(fmt.Sprintf(lockName, env))
}
