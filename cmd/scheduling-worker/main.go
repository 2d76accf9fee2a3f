package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hackgods/session-scheduling/internal/config"
	"github.com/hackgods/session-scheduling/internal/db"
	"github.com/hackgods/session-scheduling/internal/logging"
	"github.com/hackgods/session-scheduling/internal/outbox"
	"github.com/hackgods/session-scheduling/internal/scheduling"
	"github.com/hackgods/session-scheduling/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.Must(cfg.IsProduction())
	defer logger.Sync()

	logger.Info("scheduling-worker starting up",
		zap.String("env", cfg.Env),
		zap.String("reconcile_cron", cfg.RatingReconcileCron),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(rootCtx, telemetry.ConfigFrom(cfg, "session-scheduling-worker"))
	if err != nil {
		logger.Fatal("telemetry setup error", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Error("telemetry shutdown error", zap.Error(err))
		}
	}()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		AppName:  "session-scheduling-worker",
		MaxConns: int32(cfg.PostgresMaxConn),
	})
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	repo := scheduling.NewPgRepository(pgPool, cfg.TxMaxRetries)
	ratings := scheduling.NewRatingAggregator(repo, logger)

	// Run once at startup
	reconcileOnce(rootCtx, logger, ratings)

	c := cron.New()
	if _, err := c.AddFunc(cfg.RatingReconcileCron, func() { reconcileOnce(rootCtx, logger, ratings) }); err != nil {
		logger.Fatal("invalid rating reconcile schedule", zap.String("spec", cfg.RatingReconcileCron), zap.Error(err))
	}
	c.Start()
	logger.Info("rating reconciliation scheduled")

	var wg sync.WaitGroup
	if pub := outbox.NewPublisher(pgPool, logger, outbox.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPollInterval,
		BatchSize: cfg.OutboxBatchSize,
	}); pub != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pub.Run(rootCtx)
		}()
		logger.Info("outbox relay started")
	} else {
		logger.Info("no kafka brokers configured, outbox relay disabled")
	}

	<-rootCtx.Done()
	logger.Info("shutdown signal received, stopping scheduling-worker")

	// Wait for a running reconciliation and the relay to finish.
	<-c.Stop().Done()
	wg.Wait()
}

func reconcileOnce(ctx context.Context, logger *zap.Logger, ratings *scheduling.RatingAggregator) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	n, err := ratings.ReconcileAll(runCtx)
	if err != nil {
		logger.Error("rating reconciliation failed", zap.Error(err))
		return
	}
	logger.Info("rating reconciliation complete",
		zap.Int("providers", n),
		zap.Duration("took", time.Since(start)),
	)
}
