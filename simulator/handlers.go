package simulator

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	purchasing "github.com/purchasekit/purchasing"
	"github.com/purchasekit/purchasing/fakestore"
	"github.com/purchasekit/purchasing/ledger"
)

// ProductView is the JSON shape of a product
type ProductView struct {
	ID                  string          `json:"id"`
	StoreSpecificID     string          `json:"storeSpecificId"`
	Type                string          `json:"type"`
	AvailableToPurchase bool            `json:"availableToPurchase"`
	Title               string          `json:"title,omitempty"`
	Price               decimal.Decimal `json:"price"`
	PriceString         string          `json:"priceString,omitempty"`
	Currency            string          `json:"currency,omitempty"`
	HasReceipt          bool            `json:"hasReceipt"`
	TransactionID       string          `json:"transactionId,omitempty"`
}

func newProductView(p *purchasing.Product) ProductView {
	return ProductView{
		ID:                  p.Definition.ID,
		StoreSpecificID:     p.Definition.StoreID(),
		Type:                p.Definition.Type.String(),
		AvailableToPurchase: p.AvailableToPurchase,
		Title:               p.Metadata.LocalizedTitle,
		Price:               p.Metadata.LocalizedPrice,
		PriceString:         p.Metadata.LocalizedPriceString,
		Currency:            p.Metadata.ISOCurrencyCode,
		HasReceipt:          p.HasReceipt(),
		TransactionID:       p.TransactionID,
	}
}

// ConnectionView is the JSON shape of the connection status
type ConnectionView struct {
	State            string `json:"state"`
	Attempts         int    `json:"attempts"`
	QueuedRetrievals int    `json:"queuedRetrievals"`
	QueuedFetches    int    `json:"queuedFetches"`
	StoreConnected   bool   `json:"storeConnected"`
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (s *Server) unavailable(c *gin.Context, err error) {
	s.logger.Warn("dispatcher call failed", zap.String("path", c.FullPath()), zap.Error(err))
	abortWithError(c, http.StatusServiceUnavailable, err)
}

func (s *Server) health(c *gin.Context) {
	var initialized bool
	if err := s.call(c, func() { initialized = s.cfg.Orchestrator.Initialized() }); err != nil {
		s.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"store":       s.cfg.Connection.Name(),
		"initialized": initialized,
	})
}

func (s *Server) listProducts(c *gin.Context) {
	var views []ProductView
	err := s.call(c, func() {
		for _, p := range s.cfg.Orchestrator.Products().All() {
			views = append(views, newProductView(p))
		}
	})
	if err != nil {
		s.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": views})
}

type productsRequest struct {
	Products []purchasing.ProductDefinition `json:"products" binding:"required,min=1"`
}

func (s *Server) fetchAdditionalProducts(c *gin.Context) {
	var req productsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	err := s.call(c, func() {
		s.cfg.Orchestrator.FetchAdditionalProducts(req.Products,
			func() { s.logger.Info("additional products fetched", zap.Int("products", len(req.Products))) },
			func(f *purchasing.RetrievalFailure) {
				s.logger.Warn("additional products fetch failed", zap.Error(f))
			})
	})
	if err != nil {
		s.unavailable(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}

type purchaseRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Payload   string `json:"payload"`
}

func (s *Server) initiatePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.call(c, func() { s.cfg.Orchestrator.InitiatePurchaseByID(req.ProductID, req.Payload) }); err != nil {
		s.unavailable(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "initiated", "productId": req.ProductID})
}

func (s *Server) fetchPurchases(c *gin.Context) {
	if err := s.call(c, s.cfg.Orchestrator.FetchPurchases); err != nil {
		s.unavailable(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "requested"})
}

func (s *Server) confirmPurchase(c *gin.Context) {
	productID := c.Param("productId")
	var confirmErr error
	err := s.call(c, func() {
		p, ok := s.cfg.Orchestrator.Products().Lookup(productID)
		if !ok {
			confirmErr = purchasing.ErrUnknownProduct
			return
		}
		confirmErr = s.cfg.Orchestrator.ConfirmPendingPurchase(p)
	})
	switch {
	case err != nil:
		s.unavailable(c, err)
	case errors.Is(confirmErr, purchasing.ErrUnknownProduct):
		abortWithError(c, http.StatusNotFound, confirmErr)
	case confirmErr != nil:
		abortWithError(c, http.StatusConflict, confirmErr)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "confirmed", "productId": productID})
	}
}

func (s *Server) checkEntitlement(c *gin.Context) {
	productID := c.Param("productId")
	var checkErr error
	err := s.call(c, func() {
		checkErr = s.cfg.Orchestrator.CheckEntitlement(s.cfg.Orchestrator.Products().WithID(productID))
	})
	switch {
	case err != nil:
		s.unavailable(c, err)
	case errors.Is(checkErr, purchasing.ErrUnknownProduct):
		abortWithError(c, http.StatusNotFound, checkErr)
	case errors.Is(checkErr, purchasing.ErrEntitlementCheckInProgress):
		abortWithError(c, http.StatusConflict, checkErr)
	case checkErr != nil:
		abortWithError(c, http.StatusBadRequest, checkErr)
	default:
		c.JSON(http.StatusAccepted, gin.H{"status": "requested", "productId": productID})
	}
}

func (s *Server) listEvents(c *gin.Context) {
	after, err := strconv.Atoi(c.DefaultQuery("after", "0"))
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	var events []Event
	if err := s.call(c, func() { events = s.cfg.App.Events(after) }); err != nil {
		s.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (s *Server) setAutoConfirm(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.call(c, func() { s.cfg.App.SetAutoConfirm(*req.Enabled) }); err != nil {
		s.unavailable(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"autoConfirm": *req.Enabled})
}

// The store is safe for concurrent use, so store handlers call it directly.
// Updates it pushes reach the orchestrator through the dispatcher.

func (s *Server) listPending(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"pending": s.cfg.Store.Pending()})
}

func (s *Server) listOwned(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"purchases": s.cfg.Store.Owned()})
}

func (s *Server) approvePending(c *gin.Context) {
	txID := c.Param("txid")
	if err := s.cfg.Store.Approve(txID); err != nil {
		abortWithError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved", "transactionId": txID})
}

type declineRequest struct {
	Reason purchasing.FailureReason `json:"reason"`
}

func (s *Server) declinePending(c *gin.Context) {
	txID := c.Param("txid")
	var req declineRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, http.StatusBadRequest, err)
			return
		}
	}
	if err := s.cfg.Store.Decline(txID, req.Reason); err != nil {
		abortWithError(c, http.StatusNotFound, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "declined", "transactionId": txID})
}

type modeRequest struct {
	Mode   string                   `json:"mode" binding:"required"`
	Reason purchasing.FailureReason `json:"reason"`
}

func (s *Server) setMode(c *gin.Context) {
	var req modeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	mode, err := fakestore.ParseMode(req.Mode)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	s.cfg.Store.SetMode(mode, req.Reason)
	c.JSON(http.StatusOK, gin.H{"mode": mode.String()})
}

type grantRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

func (s *Server) grantPurchase(c *gin.Context) {
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, err)
		return
	}
	var (
		def   purchasing.ProductDefinition
		known bool
	)
	err := s.call(c, func() {
		var p *purchasing.Product
		if p, known = s.cfg.Orchestrator.Products().Lookup(req.ProductID); known {
			def = p.Definition
		}
	})
	if err != nil {
		s.unavailable(c, err)
		return
	}
	if !known {
		abortWithError(c, http.StatusNotFound, purchasing.ErrUnknownProduct)
		return
	}
	txID := s.cfg.Store.AddPurchase(def)
	c.JSON(http.StatusCreated, gin.H{"productId": req.ProductID, "transactionId": txID})
}

func (s *Server) revoke(c *gin.Context) {
	productID := c.Param("productId")
	var storeID string
	if err := s.call(c, func() {
		storeID = s.cfg.Orchestrator.Products().WithID(productID).Definition.StoreID()
	}); err != nil {
		s.unavailable(c, err)
		return
	}
	if !s.cfg.Store.Revoke(storeID) {
		abortWithError(c, http.StatusNotFound, errors.New("product is not owned"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked", "productId": productID})
}

func (s *Server) connectionStatus(c *gin.Context) {
	var view ConnectionView
	err := s.call(c, func() {
		view.State = s.cfg.Connection.State().String()
		view.Attempts = s.cfg.Connection.Attempts()
		view.QueuedRetrievals, view.QueuedFetches = s.cfg.Connection.QueuedRequests()
	})
	if err != nil {
		s.unavailable(c, err)
		return
	}
	view.StoreConnected = s.cfg.Store.Connected()
	c.JSON(http.StatusOK, view)
}

func (s *Server) dropConnection(c *gin.Context) {
	s.cfg.Store.Drop(nil)
	c.JSON(http.StatusAccepted, gin.H{"status": "dropped"})
}

func (s *Server) resumeConnection(c *gin.Context) {
	if err := s.call(c, s.cfg.Connection.ResumeConnection); err != nil {
		s.unavailable(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "resuming"})
}

func (s *Server) ledgerLookup(c *gin.Context) {
	txID := c.Param("txid")
	if s.cfg.Ledger == nil {
		abortWithError(c, http.StatusNotFound, errors.New("no transaction ledger configured"))
		return
	}
	recorded := s.cfg.Ledger.HasRecordOf(c.Request.Context(), txID)
	c.JSON(http.StatusOK, gin.H{
		"transactionId": txID,
		"key":           ledger.Hash(txID),
		"recorded":      recorded,
	})
}
