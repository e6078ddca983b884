package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockroom/stockroom/internal/app"
	"github.com/stockroom/stockroom/internal/inventory"
	"github.com/stockroom/stockroom/internal/notify"
	"github.com/stockroom/stockroom/internal/observability"
	"github.com/stockroom/stockroom/internal/orders"
	"github.com/stockroom/stockroom/internal/platform/cache"
	"github.com/stockroom/stockroom/internal/platform/db"
	"github.com/stockroom/stockroom/internal/replenishment"
	"github.com/stockroom/stockroom/internal/reports"
	reportshttp "github.com/stockroom/stockroom/internal/reports/http"
	"github.com/stockroom/stockroom/internal/shared"
	"github.com/stockroom/stockroom/internal/snapshot"
	"github.com/stockroom/stockroom/internal/store"
	"github.com/stockroom/stockroom/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	pg, err := store.NewPostgres(dbpool)
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

	metrics := observability.NewMetrics()

	loader := snapshot.NewLoader(pg, logger, snapshot.WithMaxAge(cfg.SnapshotMaxAge))
	if err := startRealtime(ctx, cfg, dbpool, loader, logger); err != nil {
		logger.Error("start realtime feed", slog.Any("error", err))
		os.Exit(1)
	}

	reportCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	computer := reports.NewComputer(logger, rand.New(rand.NewSource(time.Now().UnixNano())))
	reportService := reports.NewService(loader, computer, pg, reportCache, logger)
	if err := reportCache.ListenForInvalidation(ctx, func(org string) {
		logger.Debug("report cache invalidated by peer", slog.String("organization_id", org))
	}); err != nil {
		logger.Warn("report cache invalidation listener", slog.Any("error", err))
	}
	loader.OnPublish(reportService.SnapshotPublished)

	idempotencyStore := shared.NewIdempotencyStore(dbpool)
	orderService := orders.NewService(pg, idempotencyStore, logger)

	notifier := notify.NewCoalescer(notify.NewStoreNotifier(pg, logger), notify.CoalescerConfig{
		Threshold: cfg.NotifyFailureThreshold,
		Window:    cfg.NotifyFailureWindow,
	}, logger)
	go notifier.Run(ctx)

	runner := replenishment.NewRunner(replenishment.RunnerConfig{
		Source:   loader,
		Markers:  replenishment.NewRedisMarkerStore(redisClient, cfg.AutoReorderCooldown),
		Orders:   orderService,
		Notifier: notifier,
		Metrics:  replenishment.NewMetrics(metrics.Registerer()),
		Logger:   logger,
	})
	watcher := replenishment.NewWatcher(ctx, runner, cfg.AutoReorderEnabledFor, logger)
	loader.OnPublish(watcher.SnapshotPublished)

	reportHandler := reportshttp.NewHandler(logger, reportService)
	inventoryHandler := inventory.NewHandler(inventory.NewService(pg, idempotencyStore, logger), logger)
	replenishmentHandler := replenishment.NewHandler(runner, replenishment.NewProfileMembership(pg), cfg.AutoReorderEnabledFor, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		ReportHandler:        reportHandler,
		InventoryHandler:     inventoryHandler,
		OrderHandler:         orders.NewHandler(orderService, logger),
		ReplenishmentHandler: replenishmentHandler,
		JobHandler:           jobHandler,
		Metrics:              metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	watcher.Wait()
	notifier.Flush(shutdownCtx)
}

type runnableFeed interface {
	store.Feed
	Run(ctx context.Context) error
}

func startRealtime(ctx context.Context, cfg *app.Config, pool *pgxpool.Pool, loader *snapshot.Loader, logger *slog.Logger) error {
	var feed runnableFeed
	switch cfg.RealtimeSource {
	case app.RealtimeNone:
		logger.Info("realtime feed disabled; snapshots refresh after max age", slog.Duration("max_age", cfg.SnapshotMaxAge))
		return nil
	case app.RealtimeKafka:
		kf, err := store.NewKafkaFeed(store.KafkaFeedConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, logger)
		if err != nil {
			return err
		}
		go func() {
			<-ctx.Done()
			if err := kf.Close(); err != nil {
				logger.Warn("kafka feed close", slog.Any("error", err))
			}
		}()
		feed = kf
	default:
		feed = store.NewPostgresFeed(pool, cfg.RealtimeChannel, logger)
	}

	go func() {
		if err := feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("realtime feed stopped", slog.Any("error", err))
		}
	}()
	loader.Follow(ctx, feed)
	return nil
}
