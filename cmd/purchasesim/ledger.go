package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/purchasekit/purchasing/ledger"
)

// openLedger connects the configured store and returns the ledger over it
// together with a function releasing the store's resources.
func openLedger(ctx context.Context, cfg LedgerConfig, logger *zap.Logger) (*ledger.Ledger, func(), error) {
	var (
		store   ledger.Store
		release = func() {}
	)

	switch cfg.Backend {
	case LedgerFile:
		fileStore, err := ledger.NewFileStore(cfg.Root)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using file ledger", zap.String("dir", fileStore.Dir()))
		store = fileStore

	case LedgerRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		var opts []ledger.RedisOption
		if cfg.RedisPrefix != "" {
			opts = append(opts, ledger.WithKeyPrefix(cfg.RedisPrefix))
		}
		logger.Info("using redis ledger", zap.String("addr", cfg.RedisAddr))
		store = ledger.NewRedisStore(client, opts...)
		release = func() { _ = client.Close() }

	case LedgerPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		pgStore := ledger.NewPostgresStore(pool)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("using postgres ledger")
		store = pgStore
		release = pool.Close

	default:
		logger.Warn("using in-memory ledger, transactions are forgotten on exit")
		store = ledger.NewInMemoryStore()
	}

	l, err := ledger.New(
		ledger.WithStore(store),
		ledger.WithCacheSize(cfg.CacheSize),
		ledger.WithLogger(logger.Named("ledger")),
	)
	if err != nil {
		release()
		return nil, nil, err
	}
	return l, release, nil
}
