// Command purchasesim runs a purchasing session against the fake store and
// exposes it over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	purchasing "github.com/purchasekit/purchasing"
	"github.com/purchasekit/purchasing/connection"
	"github.com/purchasekit/purchasing/dispatch"
	"github.com/purchasekit/purchasing/fakestore"
	"github.com/purchasekit/purchasing/simulator"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "purchasesim: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := LoadConfig(args, os.Getenv)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	txLog, closeLedger, err := openLedger(ctx, cfg.Ledger, logger)
	if err != nil {
		return err
	}
	defer closeLedger()

	loop := dispatch.NewLoop(dispatch.WithLogger(logger.Named("dispatch")))
	store := fakestore.New(append(cfg.StoreOptions(), fakestore.WithLogger(logger.Named("fakestore")))...)
	if cfg.Store.DeclineReason != "" {
		store.SetMode(store.Mode(), purchasing.FailureReason(cfg.Store.DeclineReason))
	}
	defs := cfg.Definitions()
	for _, id := range cfg.Store.Owned {
		for _, def := range defs {
			if def.ID == id {
				logger.Info("granting owned purchase", zap.String("productID", id),
					zap.String("transactionID", store.AddPurchase(def)))
			}
		}
	}

	app := simulator.NewApp()
	conn := connection.New(store,
		connection.WithDispatcher(loop),
		connection.WithLogger(logger.Named("connection")),
		connection.WithMaxAttempts(cfg.Connection.MaxAttempts),
		connection.WithRetryPolicy(connection.NewRetryPolicy(
			connection.WithDelays(cfg.Connection.InitialDelay, cfg.Connection.MaxDelay))),
		connection.WithStateHook(app.OnStateChange),
	)
	orchestrator := purchasing.New(conn, app,
		purchasing.WithLogger(logger.Named("purchasing")),
		purchasing.WithTransactionLog(txLog),
		purchasing.WithLedgerTimeout(cfg.Ledger.Timeout),
		purchasing.WithFetchPurchasesOnInit(cfg.FetchPurchasesOnInit),
	)

	server, err := simulator.New(simulator.Config{
		Orchestrator: orchestrator,
		Connection:   conn,
		Store:        store,
		Ledger:       txLog,
		App:          app,
		Loop:         loop,
		Logger:       logger.Named("http"),
	})
	if err != nil {
		return err
	}
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	loop.Dispatch(func() {
		if err := orchestrator.Initialize(defs); err != nil {
			logger.Error("failed to initialize purchasing", zap.Error(err))
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("purchase simulator listening", zap.String("addr", cfg.Listen),
			zap.String("ledger", cfg.Ledger.Backend), zap.Int("products", len(defs)))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
