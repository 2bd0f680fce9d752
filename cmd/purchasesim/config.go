package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	purchasing "github.com/purchasekit/purchasing"
	"github.com/purchasekit/purchasing/fakestore"
)

//go:embed config.schema.json
var configSchema []byte

// Ledger backends
const (
	LedgerMemory   = "memory"
	LedgerFile     = "file"
	LedgerRedis    = "redis"
	LedgerPostgres = "postgres"
)

var errInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Listen               string           `yaml:"listen"`
	FetchPurchasesOnInit bool             `yaml:"fetchPurchasesOnInit"`
	Log                  LogConfig        `yaml:"log"`
	Products             []ProductConfig  `yaml:"products"`
	Store                StoreConfig      `yaml:"store"`
	Ledger               LedgerConfig     `yaml:"ledger"`
	Connection           ConnectionConfig `yaml:"connection"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ProductConfig is one catalog entry. Listing fields feed the fake store.
type ProductConfig struct {
	ID              string `yaml:"id"`
	StoreSpecificID string `yaml:"storeSpecificId"`
	Type            string `yaml:"type"`
	Title           string `yaml:"title"`
	Description     string `yaml:"description"`
	Price           string `yaml:"price"`
	Currency        string `yaml:"currency"`
}

type StoreConfig struct {
	Mode          string   `yaml:"mode"`
	DeclineReason string   `yaml:"declineReason"`
	Unavailable   []string `yaml:"unavailable"`
	// Owned product ids are granted at startup as if bought on another device
	Owned []string `yaml:"owned"`
}

type LedgerConfig struct {
	Backend     string        `yaml:"backend"`
	Root        string        `yaml:"root"`
	RedisAddr   string        `yaml:"redisAddr"`
	RedisPrefix string        `yaml:"redisPrefix"`
	PostgresDSN string        `yaml:"postgresDSN"`
	CacheSize   int           `yaml:"cacheSize"`
	Timeout     time.Duration `yaml:"timeout"`
}

type ConnectionConfig struct {
	MaxAttempts  int           `yaml:"maxAttempts"`
	InitialDelay time.Duration `yaml:"initialDelay"`
	MaxDelay     time.Duration `yaml:"maxDelay"`
}

// DefaultConfig serves a three product catalog from memory on :8080
func DefaultConfig() Config {
	return Config{
		Listen:               ":8080",
		FetchPurchasesOnInit: true,
		Log:                  LogConfig{Level: "info"},
		Products: []ProductConfig{
			{ID: "coins_100", Type: "consumable"},
			{ID: "remove_ads", Type: "non_consumable"},
			{ID: "vip", Type: "subscription"},
		},
		Store: StoreConfig{Mode: fakestore.ModeApprove.String()},
		Ledger: LedgerConfig{
			Backend:   LedgerMemory,
			CacheSize: 4096,
			Timeout:   purchasing.DefaultLedgerTimeout,
		},
		Connection: ConnectionConfig{
			MaxAttempts:  3,
			InitialDelay: 2 * time.Second,
			MaxDelay:     30 * time.Second,
		},
	}
}

// LoadConfig layers defaults, the YAML file named by --config, environment
// variables and flags, in that order, then validates the result.
func LoadConfig(args []string, getenv func(string) string) (Config, error) {
	fs := pflag.NewFlagSet("purchasesim", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "path to a YAML configuration file")
	listen := fs.String("listen", "", "HTTP listen address")
	ledgerBackend := fs.String("ledger", "", "ledger backend: memory, file, redis or postgres")
	ledgerRoot := fs.String("ledger-root", "", "directory for the file ledger")
	redisAddr := fs.String("redis-addr", "", "redis address for the redis ledger")
	postgresDSN := fs.String("postgres-dsn", "", "connection string for the postgres ledger")
	mode := fs.String("mode", "", "fake store purchase mode: approve, decline, defer or manual")
	logLevel := fs.String("log-level", "", "log level")
	dev := fs.Bool("dev", false, "use a development logger")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		data, err := os.ReadFile(*configPath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := parseConfig(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	overlay := func(dst *string, value string) {
		if value != "" {
			*dst = value
		}
	}
	overlay(&cfg.Listen, getenv("PURCHASESIM_LISTEN"))
	overlay(&cfg.Ledger.Backend, getenv("PURCHASESIM_LEDGER"))
	overlay(&cfg.Ledger.RedisAddr, getenv("PURCHASING_REDIS_ADDR"))
	overlay(&cfg.Ledger.PostgresDSN, getenv("PURCHASING_POSTGRES_DSN"))

	overlay(&cfg.Listen, *listen)
	overlay(&cfg.Ledger.Backend, *ledgerBackend)
	overlay(&cfg.Ledger.Root, *ledgerRoot)
	overlay(&cfg.Ledger.RedisAddr, *redisAddr)
	overlay(&cfg.Ledger.PostgresDSN, *postgresDSN)
	overlay(&cfg.Store.Mode, *mode)
	overlay(&cfg.Log.Level, *logLevel)
	if fs.Changed("dev") {
		cfg.Log.Development = *dev
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// parseConfig checks data against the embedded schema and decodes it over cfg
func parseConfig(data []byte, cfg *Config) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if doc == nil {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(configSchema), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
		}
		return fmt.Errorf("%w: %s", errInvalidConfig, strings.Join(msgs, "; "))
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

// Validate checks what the schema cannot: cross references and parsed values
func (c Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{errInvalidConfig}, args...)...))
	}

	if c.Listen == "" {
		fail("listen address is required")
	}
	if len(c.Products) == 0 {
		fail("at least one product is required")
	}
	ids := make(map[string]bool, len(c.Products))
	for _, p := range c.Products {
		if p.ID == "" {
			fail("product without id")
			continue
		}
		if ids[p.ID] {
			fail("duplicate product %q", p.ID)
		}
		ids[p.ID] = true
		if _, err := purchasing.ParseProductType(p.Type); err != nil {
			fail("product %q: %v", p.ID, err)
		}
		if p.Price != "" {
			if _, err := decimal.NewFromString(p.Price); err != nil {
				fail("product %q: invalid price %q", p.ID, p.Price)
			}
		}
	}

	if _, err := fakestore.ParseMode(c.Store.Mode); err != nil {
		fail("%v", err)
	}
	for _, id := range c.Store.Owned {
		if !ids[id] {
			fail("owned product %q is not in the catalog", id)
		}
	}

	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerFile:
		if c.Ledger.Root == "" {
			fail("file ledger needs a root directory")
		}
	case LedgerRedis:
		if c.Ledger.RedisAddr == "" {
			fail("redis ledger needs an address")
		}
	case LedgerPostgres:
		if c.Ledger.PostgresDSN == "" {
			fail("postgres ledger needs a DSN")
		}
	default:
		fail("unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ledger.CacheSize < 1 {
		fail("ledger cache size must be positive")
	}

	if c.Connection.MaxAttempts < 1 {
		fail("connection max attempts must be positive")
	}
	if c.Connection.InitialDelay <= 0 || c.Connection.MaxDelay < c.Connection.InitialDelay {
		fail("connection delays must be positive with initialDelay <= maxDelay")
	}
	return errors.Join(errs...)
}

// Definitions returns the catalog as product definitions
func (c Config) Definitions() []purchasing.ProductDefinition {
	defs := make([]purchasing.ProductDefinition, 0, len(c.Products))
	for _, p := range c.Products {
		t, _ := purchasing.ParseProductType(p.Type)
		if p.Type == "" {
			t = purchasing.Consumable
		}
		def := purchasing.NewProductDefinition(p.ID, t)
		if p.StoreSpecificID != "" {
			def.StoreSpecificID = p.StoreSpecificID
		}
		defs = append(defs, def)
	}
	return defs
}

// StoreOptions configures the fake store's listings, availability and mode
func (c Config) StoreOptions() []fakestore.Option {
	mode, _ := fakestore.ParseMode(c.Store.Mode)
	opts := []fakestore.Option{fakestore.WithMode(mode), fakestore.WithUnavailable(c.Store.Unavailable...)}
	defs := c.Definitions()
	for i, p := range c.Products {
		if p.Title == "" && p.Price == "" {
			continue
		}
		metadata := fakestore.DefaultMetadata(p.ID)
		if p.Title != "" {
			metadata.LocalizedTitle = p.Title
		}
		if p.Description != "" {
			metadata.LocalizedDescription = p.Description
		}
		if p.Currency != "" {
			metadata.ISOCurrencyCode = p.Currency
		}
		if price, err := decimal.NewFromString(p.Price); err == nil {
			metadata.LocalizedPrice = price
			metadata.LocalizedPriceString = price.StringFixed(2) + " " + metadata.ISOCurrencyCode
		}
		opts = append(opts, fakestore.WithProduct(defs[i].StoreID(), metadata))
	}
	return opts
}
