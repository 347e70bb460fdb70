// Package main runs the outbox worker: it moves committed domain events from
// the Redis queue onto each tenant's event channel.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ticketing-suite/ticketing/config"
	"github.com/ticketing-suite/ticketing/internal/outbox"
	"github.com/ticketing-suite/ticketing/internal/telemetry"
	"github.com/ticketing-suite/ticketing/internal/tenancy"
	"github.com/ticketing-suite/ticketing/pkg/database"
	"github.com/ticketing-suite/ticketing/pkg/queue"
	"github.com/ticketing-suite/ticketing/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	cfg.Telemetry.ServiceName += "-worker"
	shutdownTracing := telemetry.Setup(ctx, cfg.Telemetry, logger)

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:    int32(cfg.Database.MaxConns),
		SessionRole: cfg.Database.SessionRole,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	dispatcher := outbox.NewDispatcher(jobQueue, outbox.NewRepository(tenancy.NewExecutor(pool, logger)), rdb, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(workerCtx)
	}()
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("dispatcher did not stop in time")
	}
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
