package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/jobcard-erp/internal/adapter/handler"
	"github.com/rl1809/jobcard-erp/internal/adapter/storage"
	"github.com/rl1809/jobcard-erp/internal/config"
	"github.com/rl1809/jobcard-erp/internal/core/service"
	"github.com/rl1809/jobcard-erp/internal/port"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	// quantities go out as JSON numbers, not strings
	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := storage.OpenMySQL(ctx, storage.MySQLConfig{
		DSN:             cfg.MySQLDSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect mysql")
	}
	logger.Info("connected to mysql")

	if cfg.RunMigrations {
		version, err := storage.Migrate(db)
		if err != nil {
			logger.WithError(err).Fatal("failed to migrate schema")
		}
		logger.WithField("version", version).Info("schema up to date")
	}

	mysqlAdapter := storage.NewMySQLAdapter(db)
	checks := map[string]handler.PingFunc{"mysql": db.PingContext}

	// Redis is optional; without it there are no idempotency keys and no GRN lock
	var (
		rdb    *redis.Client
		cache  port.CacheRepository
		locker port.Locker
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("failed to connect redis")
		}
		logger.WithField("addr", cfg.RedisAddr).Info("connected to redis")

		redisAdapter := storage.NewRedisAdapter(rdb)
		cache = redisAdapter
		locker = redisAdapter
		checks["redis"] = redisAdapter.Ping
	} else {
		logger.Warn("REDIS_ADDR not set; idempotency keys and grn lock disabled")
	}

	// Initialize services
	opts := service.Options{
		OpTimeout:            cfg.OpTimeout,
		RejectNonPositiveQty: cfg.RejectNonPositiveQty,
	}
	inwardService := service.NewInwardService(mysqlAdapter, cache, opts, logger)
	challanService := service.NewChallanService(mysqlAdapter, locker, service.ChallanOptions{
		Options:    opts,
		LockTTL:    cfg.GRNLockTTL,
		MaxRetries: cfg.GRNMaxRetries,
	}, logger)

	// Start health reporter
	var wg sync.WaitGroup
	healthCtx, stopHealth := context.WithCancel(ctx)
	reporter := handler.NewHealthReporter(checks, cfg.HealthInterval, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		reporter.Run(healthCtx)
	}()

	// Initialize gRPC server
	grpcServer := handler.NewGRPCServer(reporter)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.WithError(err).Fatal("failed to listen")
	}

	go func() {
		logger.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			config.LogError(logger, "main", "grpcServer.Serve", "gRPC server error", cfg.GRPCAddr, err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(inwardService, challanService, db, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			config.LogError(logger, "main", "httpServer.ListenAndServe", "HTTP server error", cfg.HTTPAddr, err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	// Stop HTTP server; in-flight requests finish their transactions
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	logger.Info("HTTP server stopped")

	// Stop gRPC server
	stopHealth()
	grpcServer.GracefulStop()
	wg.Wait()
	logger.Info("gRPC server stopped")

	// Close connections
	if rdb != nil {
		rdb.Close()
	}
	db.Close()
	logger.Info("connections closed")
}
