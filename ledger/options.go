package ledger

import "go.uber.org/zap"

// DefaultCacheSize is how many hashes the ledger keeps in memory
const DefaultCacheSize = 4096

// config holds the configuration for a Ledger.
type config struct {
	store     Store
	cacheSize int
	logger    *zap.Logger
}

// Option configures a Ledger.
type Option func(*config)

// WithStore sets the durable store.
//
// Without a store the ledger reports every id as unseen and drops writes.
func WithStore(store Store) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithCacheSize sets how many recorded hashes are cached in memory.
//
// Default: 4096
func WithCacheSize(size int) Option {
	return func(c *config) {
		c.cacheSize = size
	}
}

// WithLogger sets the logger used for swallowed storage errors.
func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}
