// Package simulator exposes a purchasing session backed by the fake store over
// HTTP, so that purchase flows, connection drops and restarts can be driven
// by hand or from scripts.
package simulator

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	purchasing "github.com/purchasekit/purchasing"
	"github.com/purchasekit/purchasing/connection"
	"github.com/purchasekit/purchasing/fakestore"
)

// DefaultCallTimeout bounds how long a request waits for the dispatcher
const DefaultCallTimeout = 5 * time.Second

// ErrMissingDependency is returned by New when Config is incomplete
var ErrMissingDependency = errors.New("simulator: missing dependency")

// Caller runs work on the dispatcher's logical thread and waits for it
type Caller interface {
	Call(ctx context.Context, fn func()) error
}

// Config holds the session a Server drives
type Config struct {
	Orchestrator *purchasing.Orchestrator
	Connection   *connection.Connection
	Store        *fakestore.Store
	Ledger       purchasing.TransactionLog
	App          *App
	Loop         Caller

	Logger      *zap.Logger
	CallTimeout time.Duration
}

// Server is the simulator's HTTP surface
type Server struct {
	cfg    Config
	logger *zap.Logger
	engine *gin.Engine
}

// New validates cfg and builds the router
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Orchestrator == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("orchestrator"))
	case cfg.Connection == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("connection"))
	case cfg.Store == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("store"))
	case cfg.App == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("app"))
	case cfg.Loop == nil:
		return nil, errors.Join(ErrMissingDependency, errors.New("loop"))
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler
func (s *Server) Handler() *gin.Engine {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/health", s.health)

	r.GET("/products", s.listProducts)
	r.POST("/products", s.fetchAdditionalProducts)

	r.POST("/purchases", s.initiatePurchase)
	r.POST("/purchases/fetch", s.fetchPurchases)
	r.POST("/purchases/:productId/confirm", s.confirmPurchase)
	r.POST("/entitlements/:productId", s.checkEntitlement)

	r.GET("/events", s.listEvents)
	r.PUT("/app/auto-confirm", s.setAutoConfirm)

	store := r.Group("/store")
	store.GET("/pending", s.listPending)
	store.POST("/pending/:txid/approve", s.approvePending)
	store.POST("/pending/:txid/decline", s.declinePending)
	store.POST("/mode", s.setMode)
	store.GET("/purchases", s.listOwned)
	store.POST("/purchases", s.grantPurchase)
	store.POST("/revoke/:productId", s.revoke)

	conn := r.Group("/connection")
	conn.GET("", s.connectionStatus)
	conn.POST("/drop", s.dropConnection)
	conn.POST("/resume", s.resumeConnection)

	r.GET("/ledger/:txid", s.ledgerLookup)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)))
	}
}

// call runs fn on the dispatcher, bounded by the request context and CallTimeout
func (s *Server) call(c *gin.Context, fn func()) error {
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.CallTimeout)
	defer cancel()
	return s.cfg.Loop.Call(ctx, fn)
}
