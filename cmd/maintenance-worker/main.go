package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-backend/internal/app"
	"github.com/angelmondragon/marketplace-backend/internal/maintenance"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

const serviceName = "maintenance-worker"

func main() {
	once := flag.Bool("once", false, "run a single maintenance cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	if err := run(ctx, cfg, logg, *once); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "maintenance worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "maintenance worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, once bool) error {
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

	stack, err := app.NewOrderStack(ctx, cfg, logg, dbClient, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer stack.Dispatcher.Wait()

	settings := cfg.Maintenance
	outboxJob, err := maintenance.NewOutboxRetentionJob(dbClient, stack.OutboxRepo, settings.OutboxRetentionDays)
	if err != nil {
		return err
	}
	notificationJob, err := maintenance.NewNotificationCleanupJob(stack.NotifyRepo, settings.NotificationRetentionDays)
	if err != nil {
		return err
	}
	unpaidJob, err := maintenance.NewUnpaidOrderExpiryJob(maintenance.UnpaidOrderParams{
		Logger:    logg,
		Finder:    stack.OrdersRepo,
		Orders:    stack.Orders,
		TTL:       settings.UnpaidOrderTTL,
		BatchSize: settings.UnpaidOrderBatchSize,
	})
	if err != nil {
		return err
	}

	lock, err := maintenance.NewRedisLock(redisClient, redisClient.LockKey(serviceName), settings.LockTTL)
	if err != nil {
		return err
	}
	scheduler, err := maintenance.NewScheduler(maintenance.SchedulerParams{
		Logger:   logg,
		Registry: maintenance.NewRegistry(unpaidJob, outboxJob, notificationJob),
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(prometheus.DefaultRegisterer),
		Interval: settings.Interval,
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting maintenance worker")
	if once {
		return scheduler.RunOnce(ctx)
	}
	return scheduler.Run(ctx)
}
