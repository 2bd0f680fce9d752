package ledger

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	purchasing "github.com/purchasekit/purchasing"
)

var (
	ErrNoRoot  = errors.New("ledger: no durable root configured")
	ErrNoStore = errors.New("ledger: no store configured")
)

// Ledger records confirmed transaction ids and answers whether an id was recorded.
// It is safe for concurrent use.
type Ledger struct {
	store  Store
	cache  *lru.Cache
	logger *zap.Logger
}

// New creates a ledger
func New(opts ...Option) (*Ledger, error) {
	cfg := &config{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.cacheSize <= 0 {
		cfg.cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cfg.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create ledger cache: %w", err)
	}
	return &Ledger{store: cfg.store, cache: cache, logger: cfg.logger}, nil
}

// HasRecordOf reports whether transactionID was recorded. Empty ids and a
// missing store always answer false. Storage errors are logged and answer false.
func (l *Ledger) HasRecordOf(ctx context.Context, transactionID string) bool {
	if transactionID == "" || l.store == nil {
		return false
	}
	key := Hash(transactionID)
	if l.cache.Contains(key) {
		return true
	}
	ok, err := l.store.Exists(ctx, key)
	if err != nil {
		l.logger.Warn("transaction ledger lookup failed",
			zap.String("transactionID", transactionID),
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	if ok {
		l.cache.Add(key, struct{}{})
	}
	return ok
}

// Record writes a marker for transactionID. Failures are logged, never returned.
func (l *Ledger) Record(ctx context.Context, transactionID string) {
	if transactionID == "" {
		return
	}
	if l.store == nil {
		l.logger.Warn("transaction not recorded", zap.String("transactionID", transactionID), zap.Error(ErrNoStore))
		return
	}
	key := Hash(transactionID)
	if err := l.store.Put(ctx, key); err != nil {
		l.logger.Error("failed to record transaction",
			zap.String("transactionID", transactionID),
			zap.String("key", key),
			zap.Error(err))
		return
	}
	l.cache.Add(key, struct{}{})
}

// Clear removes every marker and empties the cache. Intended for tests.
func (l *Ledger) Clear(ctx context.Context) error {
	l.cache.Purge()
	if l.store == nil {
		return nil
	}
	return l.store.Clear(ctx)
}

var _ purchasing.TransactionLog = (*Ledger)(nil)
