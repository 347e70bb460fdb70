// Package main runs the ticketing HTTP API with graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ticketing-suite/ticketing/config"
	"github.com/ticketing-suite/ticketing/internal/access"
	"github.com/ticketing-suite/ticketing/internal/attachments"
	"github.com/ticketing-suite/ticketing/internal/auth"
	"github.com/ticketing-suite/ticketing/internal/comments"
	"github.com/ticketing-suite/ticketing/internal/directory"
	"github.com/ticketing-suite/ticketing/internal/health"
	"github.com/ticketing-suite/ticketing/internal/middleware"
	"github.com/ticketing-suite/ticketing/internal/outbox"
	"github.com/ticketing-suite/ticketing/internal/ratelimit"
	"github.com/ticketing-suite/ticketing/internal/server"
	"github.com/ticketing-suite/ticketing/internal/telemetry"
	"github.com/ticketing-suite/ticketing/internal/tenancy"
	"github.com/ticketing-suite/ticketing/internal/tickets"
	"github.com/ticketing-suite/ticketing/internal/users"
	"github.com/ticketing-suite/ticketing/pkg/database"
	"github.com/ticketing-suite/ticketing/pkg/queue"
	"github.com/ticketing-suite/ticketing/pkg/redis"
	"github.com/ticketing-suite/ticketing/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	shutdownTracing := telemetry.Setup(ctx, cfg.Telemetry, logger)

	if err := migrate(ctx, cfg.Database.DSN()); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:    int32(cfg.Database.MaxConns),
		SessionRole: cfg.Database.SessionRole,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()
	exec := tenancy.NewExecutor(pool, logger)

	// Redis backs rate limiting and the outbox queue. Without it the API
	// still serves requests with an in-process limiter and no event fan-out.
	var (
		limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter(10000)
		events  outbox.Enqueuer
		rdb     *redis.Client
	)
	rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Warn("redis unavailable, running degraded", zap.Error(err))
	} else {
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb.Client, "ratelimit:")
		events = queue.NewQueue(rdb.Client, logger)
	}

	verifier, issuer := newVerifier(cfg.Auth, logger)

	var presigner attachments.Presigner
	if cfg.AWS.AttachmentsBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AttachmentsBucket:    cfg.AWS.AttachmentsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("S3 unavailable, attachments disabled", zap.Error(err))
		} else {
			presigner = s3Client
		}
	}

	healthHandler := health.NewHandler(logger).Register("postgres", pool.Ping)
	if !cfg.Redis.SkipHealth {
		healthHandler.Register("redis", func(ctx context.Context) error {
			if rdb == nil {
				return errors.New("redis not connected")
			}
			return rdb.Ping(ctx).Err()
		})
	}

	var (
		metrics        *middleware.Metrics
		metricsHandler http.Handler
	)
	if cfg.Server.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = middleware.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	router := server.NewRouter(server.Options{
		Verifier:       verifier,
		Gate:           access.NewGate(access.DefaultPolicy()),
		Logger:         logger,
		CORSOrigins:    cfg.Server.CORSAllowedOrigins,
		APIPrefix:      cfg.Server.APIPrefix,
		Limiter:        limiter,
		RateLimit:      cfg.RateLimit.Requests,
		RateWindow:     time.Duration(cfg.RateLimit.WindowSec) * time.Second,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		LocalLogin:     issuer != nil,
	}, server.Handlers{
		Health:      healthHandler,
		Tickets:     tickets.NewHandler(tickets.NewRepository(exec), logger),
		Comments:    comments.NewHandler(comments.NewRepository(exec), events, logger),
		Attachments: attachments.NewHandler(attachments.NewRepository(exec), presigner, cfg.AWS.MaxAttachmentBytes, logger),
		Directory:   directory.NewHandler(directory.NewRepository(exec), logger),
		Users:       users.NewHandler(users.NewRepository(exec), issuer, logger),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "ticketing-api"),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.Bool("oidc", cfg.Auth.OIDCEnabled()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

// migrate applies the schema on a dedicated connection that does not assume
// the session role, so it keeps the table owner's DDL privileges.
func migrate(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	return database.Migrate(ctx, conn)
}

// newVerifier selects token verification. The issuer is only returned in
// insecure mode, where it backs local login.
func newVerifier(cfg config.AuthConfig, logger *zap.Logger) (auth.Verifier, *auth.TokenIssuer) {
	claims := auth.NewClaimMapping(cfg.TenantClaim, cfg.RoleClaim)
	if cfg.OIDCEnabled() {
		keys := auth.NewKeySet(cfg.JWKSEndpoint(), auth.KeySetOptions{
			TTL:          time.Duration(cfg.JWKSCacheTTLSec) * time.Second,
			FetchTimeout: time.Duration(cfg.JWKSFetchTimeoutSec) * time.Second,
			Logger:       logger,
		})
		logger.Info("OIDC token verification enabled", zap.String("issuer", cfg.OIDCIssuer), zap.String("jwks", cfg.JWKSEndpoint()))
		return auth.NewOIDCVerifier(auth.OIDCConfig{Issuer: cfg.OIDCIssuer, Audience: cfg.OIDCAudience, Claims: claims}, keys), nil
	}
	logger.Warn("AUTH_ALLOW_INSECURE_TOKENS is set: bearer tokens are accepted without signature verification")
	return auth.NewInsecureVerifier(claims), auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpireHours)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
