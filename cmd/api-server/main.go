package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/session-scheduling/internal/api"
	"github.com/hackgods/session-scheduling/internal/auth"
	"github.com/hackgods/session-scheduling/internal/config"
	"github.com/hackgods/session-scheduling/internal/db"
	"github.com/hackgods/session-scheduling/internal/logging"
	redisclient "github.com/hackgods/session-scheduling/internal/redis"
	"github.com/hackgods/session-scheduling/internal/scheduling"
	"github.com/hackgods/session-scheduling/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("config load error: " + err.Error())
	}

	logger := logging.Must(cfg.IsProduction())
	defer logger.Sync()

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(rootCtx, telemetry.ConfigFrom(cfg, "session-scheduling-api"))
	if err != nil {
		logger.Fatal("telemetry setup error", zap.Error(err))
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.PoolOptions{
		AppName:  "session-scheduling-api",
		MaxConns: int32(cfg.PostgresMaxConn),
	})
	if err == nil {
		err = db.Migrate(pgCtx, pgPool)
	}
	cancelPg()
	if err != nil {
		logger.Fatal("postgres setup error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	healthChecks := []api.HealthCheck{
		{Name: "postgres", Critical: true, Check: db.ReadyCheck(pgPool)},
	}

	// Connect Redis. Without it booking locks fall back to this process only
	// and the database constraint remains the guard across instances.
	var locker redisclient.Locker
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		logger.Warn("redis unavailable, using in-process booking locks", zap.Error(err))
		locker = redisclient.NewLocalLocker()
	} else {
		defer closeRedis(logger, rdb)
		logger.Info("connected to Redis")
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
		healthChecks = append(healthChecks, api.HealthCheck{Name: "redis", Check: redisclient.ReadyCheck(rdb)})
	}

	repo := scheduling.NewPgRepository(pgPool, cfg.TxMaxRetries)
	ratings := scheduling.NewRatingAggregator(repo, logger)

	router := api.NewRouter(api.RouterConfig{
		Providers:      scheduling.NewProviderDirectory(repo, logger),
		Availability:   scheduling.NewAvailabilityRegistry(repo, logger),
		Bookings:       scheduling.NewBookingScheduler(repo, locker, logger),
		Reviews:        scheduling.NewReviewService(repo, ratings, logger),
		Auth:           auth.NewGateway(cfg.JWTSecret, cfg.JWTTTL),
		Logger:         logger,
		HealthChecks:   healthChecks,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown error", zap.Error(err))
	}
}

func closeRedis(logger *zap.Logger, rdb *redis.Client) {
	if err := rdb.Close(); err != nil {
		logger.Error("error closing redis", zap.Error(err))
	}
}
