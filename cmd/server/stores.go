package main

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"paygate/cmd/server/config"
	"paygate/internal/cache"
	merchantdb "paygate/internal/db/merchant"
	"paygate/internal/merchant"
)

var openPaymentsDB = func(driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// buildStores wires the order and transaction stores. With DATABASE_URL
// set they live in Postgres; otherwise in-memory stores keep the
// gateway runnable for local development.
func buildStores(ctx context.Context, logger *zap.Logger) (merchant.OrderStore, merchant.TransactionStore, func(), error) {
	cleanup := func() {}

	dsn := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dsn == "" {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		return merchant.NewMemoryOrderStore(), merchant.NewMemoryTransactionStore(), cleanup, nil
	}

	db, err := openPaymentsDB("pgx", dsn)
	if err != nil {
		return nil, nil, nil, err
	}

	setupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	orders, err := merchantdb.NewOrderStoreWithSchema(setupCtx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	txns, err := merchantdb.NewTransactionStoreWithSchema(setupCtx, db)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}

	logger.Info("postgres stores enabled")
	cleanup = func() {
		if err := db.Close(); err != nil {
			logger.Warn("close postgres", zap.Error(err))
		}
	}
	return orders, txns, cleanup, nil
}

// buildOrderCache wraps the order store with the Redis read-through
// layer when REDIS_URL is configured.
func buildOrderCache(ctx context.Context, inner merchant.OrderStore, logger *zap.Logger) (merchant.OrderStore, func(), error) {
	cleanup := func() {}

	cfg, err := config.LoadRedis()
	if err != nil {
		return nil, nil, err
	}
	if cfg.URL == "" {
		return inner, cleanup, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}
	if cfg.ReadTimeout != nil {
		opts.ReadTimeout = *cfg.ReadTimeout
	}
	if cfg.WriteTimeout != nil {
		opts.WriteTimeout = *cfg.WriteTimeout
	}
	if cfg.PoolSize != nil {
		opts.PoolSize = *cfg.PoolSize
	}
	if cfg.MinIdleConns != nil {
		opts.MinIdleConns = *cfg.MinIdleConns
	}
	if cfg.MaxRetries != nil {
		opts.MaxRetries = *cfg.MaxRetries
	}
	if cfg.TLSConfig != nil {
		opts.TLSConfig = cfg.TLSConfig
	}

	client := redis.NewClient(opts)
	if cfg.EnableOTel {
		if err := redisotel.InstrumentTracing(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
	}

	pingCtx := ctx
	if cfg.HealthcheckTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(pingCtx, cfg.HealthcheckTimeout)
		defer cancel()
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	logger.Info("redis order cache enabled")
	cleanup = func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis", zap.Error(err))
		}
	}
	return cache.NewRedisOrderCache(inner, client, cfg.OrderTTL, logger), cleanup, nil
}
