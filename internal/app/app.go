package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/trade-escrow/internal/api"
	"github.com/ayo6706/trade-escrow/internal/api/handler"
	"github.com/ayo6706/trade-escrow/internal/api/middleware"
	"github.com/ayo6706/trade-escrow/internal/config"
	"github.com/ayo6706/trade-escrow/internal/db"
	"github.com/ayo6706/trade-escrow/internal/events"
	"github.com/ayo6706/trade-escrow/internal/fxcache"
	"github.com/ayo6706/trade-escrow/internal/idempotency"
	"github.com/ayo6706/trade-escrow/internal/observability"
	"github.com/ayo6706/trade-escrow/internal/repository"
	"github.com/ayo6706/trade-escrow/internal/repository/memory"
	"github.com/ayo6706/trade-escrow/internal/service"
	"github.com/ayo6706/trade-escrow/internal/worker"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const serviceName = "trade-escrow"

// backend is what both store implementations offer to the rest of the process.
type backend interface {
	service.QueryStore
	handler.Pinger
}

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("store ready", zap.String("backend", cfg.StoreBackend))

	// A nil *redis.Client must not leak into the redis.Cmdable interfaces below.
	var rdb redis.Cmdable
	var cache *fxcache.Cache
	if cfg.RedisURL != "" {
		client, err := newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		rdb = client
		cache = fxcache.New(client)
	} else {
		logger.Info("redis disabled, fx quotes and idempotency records are served from the store")
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(serviceName), nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		natsPub, err := events.NewNATSPublisher(nc, cfg.NATSStream, cfg.NATSSubjectPrefix, serviceName)
		if err != nil {
			nc.Close()
			return fmt.Errorf("init event publisher: %w", err)
		}
		defer natsPub.Close()
		publisher = natsPub
		logger.Info("publishing domain events", zap.String("stream", cfg.NATSStream), zap.String("prefix", cfg.NATSSubjectPrefix))
	}

	svc := service.New(store, service.NewStaticRateOracle(cfg.FXRates), cache, publisher, service.Options{
		FXQuoteTTL:           cfg.FXQuoteTTL,
		FXQuoteRetention:     cfg.FXQuoteRetention,
		PaymentHoldTTL:       cfg.PaymentHoldTTL,
		WebhookHMACKey:       cfg.WebhookHMACKey,
		WebhookSkipSignature: cfg.WebhookSkipSignature,
	})
	idemStore := idempotency.NewStore(rdb, store, cfg.IdempotencyTTL)

	reconWorker := worker.NewReconciliationWorker(svc.Reconciliation).WithInterval(cfg.ReconciliationInterval)
	stopRecon := reconWorker.Run(ctx)
	logger.Info("reconciliation worker started", zap.Duration("interval", cfg.ReconciliationInterval))

	janitor, err := worker.NewJanitorWorker(svc.Janitor, cfg.JanitorSchedule)
	if err != nil {
		stopRecon()
		return fmt.Errorf("init janitor: %w", err)
	}
	stopJanitor, err := janitor.Run(ctx)
	if err != nil {
		stopRecon()
		return fmt.Errorf("start janitor: %w", err)
	}
	logger.Info("janitor scheduled", zap.String("schedule", cfg.JanitorSchedule))

	router := api.NewRouter(cfg, logger, store, rdb, idemStore, svc)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping workers")
	stopJanitor()
	stopRecon()

	logger.Info("shutdown complete")
	return runErr
}

// openStore returns the configured backend and a func releasing it.
func openStore(ctx context.Context, cfg *config.Config) (backend, func(), error) {
	if cfg.StoreBackend == config.StoreMemory {
		zap.L().Warn("using the in-memory store, state is lost on restart")
		return memory.NewStore(), func() {}, nil
	}
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return repository.NewStore(pool), pool.Close, nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.InitialFields = map[string]any{"service": serviceName}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
