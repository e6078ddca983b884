package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockroom/stockroom/internal/app"
	jobmetrics "github.com/stockroom/stockroom/internal/jobs"
	"github.com/stockroom/stockroom/internal/notify"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/platform/cache"
	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/replenishment"
	"github.com/stockroom/stockroom/internal/reports"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/snapshot"
	"github.com/stockroom/stockroom/internal/store"
	"github.com/stockroom/stockroom/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	pg, err := store.NewPostgres(pool)
	if err != nil {
		logger.Error("init store", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	jm := jobmetrics.NewMetrics(nil)
	loader := snapshot.NewLoader(pg, logger, snapshot.WithMaxAge(cfg.SnapshotMaxAge))
	reportService := reports.NewService(loader, reports.NewComputer(logger, nil), pg, reports.NewCache(redisClient, cfg.ReportCacheTTL), logger)

	notifier := notify.NewCoalescer(notify.NewStoreNotifier(pg, logger), notify.CoalescerConfig{
		Threshold: cfg.NotifyFailureThreshold,
		Window:    cfg.NotifyFailureWindow,
	}, logger)
	go notifier.Run(ctx)

	idempotencyStore := shared.NewIdempotencyStore(pool)
	runner := replenishment.NewRunner(replenishment.RunnerConfig{
		Source:   loader,
		Markers:  replenishment.NewRedisMarkerStore(redisClient, cfg.AutoReorderCooldown),
		Orders:   orders.NewService(pg, idempotencyStore, logger),
		Notifier: notifier,
		Metrics:  replenishment.NewMetrics(nil),
		Logger:   logger,
	})

	scanJob := &jobs.ReplenishmentScanJob{
		Loader:        loader,
		Runner:        runner,
		Organizations: pg,
		Enabled:       cfg.AutoReorderEnabledFor,
		Logger:        logger,
		Metrics:       jm,
	}
	warmupJob := &jobs.ReportsWarmupJob{
		Loader:        loader,
		Reports:       reportService,
		Organizations: pg,
		Logger:        logger,
		Metrics:       jm,
	}

	scanTask, err := jobs.NewReplenishmentScanTask(jobs.ReplenishmentScanPayload{})
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewReportsWarmupTask(jobs.ReportsWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewIdempotencyCleanupTask(7 * 24 * time.Hour)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	var cron []jobs.CronRegistration
	if cfg.AutoReorderEnabled {
		cron = append(cron, jobs.CronRegistration{Spec: cfg.AutoReorderCron, Task: scanTask, Options: []asynq.Option{asynq.Unique(time.Minute)}})
	}
	cron = append(cron,
		jobs.CronRegistration{Spec: cfg.ReportsWarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		jobs.CronRegistration{Spec: "0 3 * * *", Task: cleanupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
	)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskReplenishmentScan, Handler: scanJob.Handle},
			{Type: jobs.TaskReportsWarmup, Handler: warmupJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: jobs.IdempotencyCleanupHandler(idempotencyStore, logger)},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
	notifier.Flush(context.Background())
}
