package purchasing

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// TransactionLog is the durable record of confirmed transactions used for de-duplication
type TransactionLog interface {
	HasRecordOf(ctx context.Context, transactionID string) bool
	Record(ctx context.Context, transactionID string)
}

// DefaultLedgerTimeout bounds a single ledger read or write
const DefaultLedgerTimeout = 5 * time.Second

// Orchestrator coordinates products, purchases and the transaction ledger.
//
// An Orchestrator is not safe for concurrent use. All of its methods, and every
// backend callback, must run on the dispatcher's logical thread.
type Orchestrator struct {
	backend  Backend
	listener Listener
	txLog    TransactionLog
	logger   *zap.Logger
	now      func() time.Time

	ledgerTimeout        time.Duration
	fetchPurchasesOnInit bool

	products *ProductCollection
	seen     map[string]struct{}

	initialized bool
	initFailed  bool

	additionalSuccess func()
	additionalFailure func(*RetrievalFailure)

	entitlementChecks map[string]struct{}

	beforePurchaseHooks []BeforePurchaseHook
	afterConfirmHooks   []AfterConfirmHook
	failureHooks        []PurchaseFailureHook
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger. Default: no-op.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTransactionLog sets the ledger consulted before granting a purchase.
// Without one every delivered transaction is treated as new.
func WithTransactionLog(txLog TransactionLog) Option {
	return func(o *Orchestrator) {
		o.txLog = txLog
	}
}

// WithLedgerTimeout bounds each ledger operation. Default: 5 seconds.
func WithLedgerTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.ledgerTimeout = timeout
		}
	}
}

// WithFetchPurchasesOnInit controls whether existing purchases are fetched right
// after OnInitialized fires. Default: true.
func WithFetchPurchasesOnInit(enabled bool) Option {
	return func(o *Orchestrator) {
		o.fetchPurchasesOnInit = enabled
	}
}

// WithClock overrides the time source used for hook timestamps
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator and registers it as the backend's callback
func New(backend Backend, listener Listener, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend:              backend,
		listener:             listener,
		logger:               zap.NewNop(),
		now:                  time.Now,
		ledgerTimeout:        DefaultLedgerTimeout,
		fetchPurchasesOnInit: true,
		products:             NewProductCollection(),
		seen:                 make(map[string]struct{}),
		entitlementChecks:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	backend.SetCallback(o)
	return o
}

// ============================================================================
// Application-facing operations
// ============================================================================

// Initialize registers product definitions and starts the initial retrieval.
// Definitions whose id is already known are ignored. Calling Initialize again
// re-arms the initialization latch.
func (o *Orchestrator) Initialize(defs []ProductDefinition) error {
	if len(defs) == 0 {
		return ErrNoProducts
	}
	o.addDefinitions(defs)
	o.initialized = false
	o.initFailed = false

	o.logger.Info("initializing purchasing",
		zap.String("store", o.backend.Name()),
		zap.Int("products", o.products.Len()))

	o.backend.Connect()
	o.backend.RetrieveProducts(o.products.Definitions())
	return nil
}

// Initialized reports whether OnInitialized has fired
func (o *Orchestrator) Initialized() bool {
	return o.initialized
}

// Products returns the product index
func (o *Orchestrator) Products() *ProductCollection {
	return o.products
}

// InitiatePurchase starts a purchase of a single unit of p. Unknown or
// unavailable products fail synchronously without reaching the backend.
func (o *Orchestrator) InitiatePurchase(p *Product, payload string) {
	if p == nil {
		o.failPurchase(UnknownProduct(""), NewPurchaseFailure("", ProductUnavailable, "no product given"))
		return
	}
	if known, ok := o.products.Lookup(p.Definition.ID); ok {
		p = known
	}
	if !p.IsKnown() || !p.AvailableToPurchase {
		o.failPurchase(p, NewPurchaseFailure(p.Definition.StoreID(), ProductUnavailable,
			"product is unknown or not available for purchase"))
		return
	}

	hookCtx := PurchaseContext{Product: p, Payload: payload, Timestamp: o.now()}
	for _, hook := range o.beforePurchaseHooks {
		if result := hook(hookCtx); result != nil && result.Abort {
			reason := result.Reason
			if reason == "" {
				reason = UnknownFailure
			}
			o.failPurchase(p, NewPurchaseFailure(p.Definition.StoreID(), reason, result.Message))
			return
		}
	}

	cart, err := SingleItemCart(p)
	if err != nil {
		o.failPurchase(p, NewPurchaseFailure(p.Definition.StoreID(), UnknownFailure, err.Error()))
		return
	}
	o.logger.Debug("purchase initiated", zap.String("productID", p.Definition.ID))
	o.backend.Purchase(cart, payload)
}

// InitiatePurchaseByID resolves a canonical id and starts a purchase
func (o *Orchestrator) InitiatePurchaseByID(productID, payload string) {
	o.InitiatePurchase(o.products.WithID(productID), payload)
}

// ConfirmPendingPurchase records p's transaction, finishes it at the backend and
// notifies the application.
func (o *Orchestrator) ConfirmPendingPurchase(p *Product) error {
	if p == nil {
		o.logger.Error("cannot confirm pending purchase", zap.Error(ErrNilProduct))
		return ErrNilProduct
	}
	if p.TransactionID == "" {
		o.logger.Error("cannot confirm pending purchase",
			zap.String("productID", p.Definition.ID),
			zap.Error(ErrMissingTransactionID))
		return ErrMissingTransactionID
	}
	cart, err := SingleItemCart(p)
	if err != nil {
		return err
	}
	o.confirm(p, NewPendingOrder(cart, p.Receipt, p.TransactionID, o.backend.Name()))
	return nil
}

// FetchAdditionalProducts registers and retrieves more products after initialization.
// Callbacks fire once, for the next retrieval result.
func (o *Orchestrator) FetchAdditionalProducts(defs []ProductDefinition, onSuccess func(), onFailure func(*RetrievalFailure)) {
	o.addDefinitions(defs)
	o.additionalSuccess = onSuccess
	o.additionalFailure = onFailure
	o.backend.RetrieveProducts(defs)
}

// FetchPurchases asks the backend for every purchase it still holds
func (o *Orchestrator) FetchPurchases() {
	o.backend.FetchPurchases()
}

// CheckEntitlement asks the backend whether the user owns p. Only one check
// per product may be in flight.
func (o *Orchestrator) CheckEntitlement(p *Product) error {
	if p == nil {
		return ErrNilProduct
	}
	known, ok := o.products.Lookup(p.Definition.ID)
	if !ok {
		return ErrUnknownProduct
	}
	key := known.Definition.StoreID()
	if _, inFlight := o.entitlementChecks[key]; inFlight {
		return ErrEntitlementCheckInProgress
	}
	o.entitlementChecks[key] = struct{}{}
	o.backend.CheckEntitlement(known.Definition)
	return nil
}

// ============================================================================
// Backend callbacks
// ============================================================================

// OnProductsRetrieved merges backend descriptions into the index, runs the
// initialization latch and then de-duplicates any purchases the descriptions carry.
func (o *Orchestrator) OnProductsRetrieved(descs []ProductDescription) {
	var created []*Product
	retrieved := make([]*Product, 0, len(descs))
	for _, d := range descs {
		p, ok := o.products.LookupStoreSpecificID(d.StoreSpecificID)
		if !ok {
			p = NewProduct(ProductDefinition{
				ID:              d.StoreSpecificID,
				StoreSpecificID: d.StoreSpecificID,
				Type:            d.Type,
			}, d.Metadata)
			created = append(created, p)
		}
		p.AvailableToPurchase = true
		p.Metadata = d.Metadata
		p.Receipt = o.unifiedReceipt(d.TransactionID, d.Receipt)
		p.TransactionID = d.TransactionID
		retrieved = append(retrieved, p)
	}
	o.products.Add(created...)

	justInitialized := o.checkForInitialization(retrieved)

	for _, p := range o.products.All() {
		if !p.HasReceipt() || p.TransactionID == "" {
			continue
		}
		if _, seen := o.seen[p.TransactionID]; seen {
			continue
		}
		o.processPurchaseIfNew(p)
	}

	// Fetch only after the scan so a synchronous answer cannot grant a receipt twice.
	if justInitialized && o.fetchPurchasesOnInit {
		o.backend.FetchPurchases()
	}
}

// OnProductsRetrieveFailed handles a failed retrieval. Only terminal failures
// fail initialization; others stay queued at the connection and are retried.
func (o *Orchestrator) OnProductsRetrieveFailed(failure *RetrievalFailure) {
	if !failure.Terminal() {
		o.logger.Warn("product retrieval delayed", zap.String("reason", string(failure.Reason)),
			zap.String("message", failure.Message))
		return
	}
	if !o.initialized && !o.initFailed {
		o.initFailed = true
		o.logger.Error("initialization failed", zap.String("reason", string(failure.Reason)),
			zap.String("message", failure.Message))
		o.listener.OnInitializeFailed(InitPurchasingUnavailable, failure.Message)
		return
	}
	if cb := o.additionalFailure; cb != nil {
		o.additionalSuccess, o.additionalFailure = nil, nil
		cb(failure)
		return
	}
	o.logger.Warn("product retrieval failed", zap.String("reason", string(failure.Reason)))
}

// OnAllPurchasesRetrieved reconciles the index with the backend's purchases.
// Products missing from purchased lose their receipt, covering revoked entitlements.
// Before initialization receipts are copied but nothing is granted.
func (o *Orchestrator) OnAllPurchasesRetrieved(purchased []ProductDescription) {
	byStoreID := make(map[string]ProductDescription, len(purchased))
	for _, d := range purchased {
		byStoreID[d.StoreSpecificID] = d
	}
	for _, p := range o.products.All() {
		d, ok := byStoreID[p.Definition.StoreID()]
		if !ok {
			p.clearPurchase()
			continue
		}
		p.Receipt = o.unifiedReceipt(d.TransactionID, d.Receipt)
		p.TransactionID = d.TransactionID
		if !o.initialized {
			continue
		}
		if _, seen := o.seen[d.TransactionID]; !seen {
			o.processPurchaseIfNew(p)
		}
	}
}

// OnPurchasesFetchFailed logs a failed purchase fetch
func (o *Orchestrator) OnPurchasesFetchFailed(failure *RetrievalFailure) {
	o.logger.Warn("fetching purchases failed", zap.String("reason", string(failure.Reason)),
		zap.String("message", failure.Message))
}

// OnPurchaseSucceeded resolves the purchased product, synthesizing a
// non-consumable placeholder when the backend id is unknown, and runs de-duplication.
func (o *Orchestrator) OnPurchaseSucceeded(storeSpecificID, receipt, transactionID string) {
	p, ok := o.products.LookupStoreSpecificID(storeSpecificID)
	if !ok {
		o.logger.Warn("purchase succeeded for unknown product", zap.String("storeSpecificID", storeSpecificID))
		p = NewProduct(NewProductDefinition(storeSpecificID, NonConsumable), ProductMetadata{})
	}
	if transactionID == "" {
		o.failPurchase(p, NewPurchaseFailure(storeSpecificID, PurchaseMissing,
			"backend reported success without a transaction"))
		return
	}
	p.Receipt = o.unifiedReceipt(transactionID, receipt)
	p.TransactionID = transactionID
	o.processPurchaseIfNew(p)
}

// OnPurchaseFailed forwards a failure for a known product. Failures for unknown
// products are dropped.
func (o *Orchestrator) OnPurchaseFailed(desc *PurchaseFailureDescription) {
	p, ok := o.products.LookupStoreSpecificID(desc.StoreSpecificID)
	if !ok {
		o.logger.Error("dropping purchase failure for unknown product",
			zap.String("storeSpecificID", desc.StoreSpecificID),
			zap.String("reason", string(desc.Reason)),
			zap.String("message", desc.Message))
		return
	}
	o.failPurchase(p, desc)
}

// OnPurchaseDeferred reports a purchase that awaits approval. It is never granted.
func (o *Orchestrator) OnPurchaseDeferred(storeSpecificID, receipt, transactionID string) {
	p, ok := o.products.LookupStoreSpecificID(storeSpecificID)
	if !ok {
		o.logger.Warn("dropping deferred purchase for unknown product", zap.String("storeSpecificID", storeSpecificID))
		return
	}
	cart, err := SingleItemCart(p)
	if err != nil {
		return
	}
	order := NewDeferredOrder(cart, receipt, transactionID, o.backend.Name())
	o.logger.Info("purchase deferred", zap.String("productID", p.Definition.ID), zap.String("transactionID", transactionID))
	if l, ok := o.listener.(DeferredPurchaseListener); ok {
		l.OnPurchaseDeferred(p, order)
	}
}

// OnEntitlementChecked delivers an entitlement result
func (o *Orchestrator) OnEntitlementChecked(storeSpecificID string, status EntitlementStatus, message string) {
	delete(o.entitlementChecks, storeSpecificID)
	p, ok := o.products.LookupStoreSpecificID(storeSpecificID)
	if !ok {
		o.logger.Warn("entitlement result for unknown product", zap.String("storeSpecificID", storeSpecificID))
		return
	}
	if l, ok := o.listener.(EntitlementListener); ok {
		l.OnEntitlementChecked(newEntitlement(p, status, message, o.backend.Name()))
	}
}

// OnEntitlementRevoked clears the product's purchase state
func (o *Orchestrator) OnEntitlementRevoked(storeSpecificID string) {
	p, ok := o.products.LookupStoreSpecificID(storeSpecificID)
	if !ok {
		return
	}
	o.logger.Info("entitlement revoked", zap.String("productID", p.Definition.ID))
	p.clearPurchase()
	if l, ok := o.listener.(EntitlementListener); ok {
		l.OnEntitlementRevoked(p)
	}
}

// ============================================================================
// Internals
// ============================================================================

// processPurchaseIfNew grants a transaction to the application at most once.
// Known transactions are still finished so the backend's queue drains.
func (o *Orchestrator) processPurchaseIfNew(p *Product) {
	txID := p.TransactionID
	if txID == "" {
		return
	}
	if o.hasRecordOf(txID) {
		o.logger.Debug("already recorded transaction", zap.String("transactionID", txID))
		o.backend.FinishTransaction(p.Definition, txID)
		return
	}

	o.seen[txID] = struct{}{}

	cart, err := SingleItemCart(p)
	if err != nil {
		return
	}
	order := NewPendingOrder(cart, p.Receipt, txID, o.backend.Name())
	if o.listener.ProcessPurchase(PurchaseEvent{Product: p, Order: order}) == Complete {
		o.confirm(p, order)
	}
}

// confirm writes the ledger before finishing at the backend. A crash in between
// leaves the transaction unrecorded, never falsely recorded.
func (o *Orchestrator) confirm(p *Product, order *PendingOrder) {
	txID := p.TransactionID
	o.recordTransaction(txID)
	o.backend.FinishTransaction(p.Definition, txID)

	confirmed := order.Confirm()
	o.logger.Info("purchase confirmed",
		zap.String("productID", p.Definition.ID),
		zap.String("transactionID", txID))

	if l, ok := o.listener.(TransactionEventListener); ok {
		l.OnTransactionFinished(p, confirmed)
	}
	resultCtx := ConfirmResultContext{Product: p, Order: confirmed, Timestamp: o.now()}
	for _, hook := range o.afterConfirmHooks {
		if err := hook(resultCtx); err != nil {
			o.logger.Warn("after confirm hook failed", zap.Error(err))
		}
	}

	if p.Definition.Type == Consumable {
		p.clearPurchase()
	}
}

// checkForInitialization reports whether this retrieval completed initialization
func (o *Orchestrator) checkForInitialization(retrieved []*Product) bool {
	if o.initialized {
		o.additionalProductsFetched(retrieved)
		return false
	}
	if o.initFailed {
		o.logger.Debug("products retrieved after failed initialization", zap.Int("products", len(retrieved)))
		return false
	}

	available := false
	for _, p := range o.products.All() {
		if p.AvailableToPurchase {
			available = true
			break
		}
	}
	if !available {
		o.initFailed = true
		o.logger.Error("initialization failed: no products available")
		o.listener.OnInitializeFailed(InitNoProductsAvailable, "no products are available for purchase")
		return false
	}

	o.initialized = true
	o.logger.Info("purchasing initialized", zap.Int("products", o.products.Len()))
	o.listener.OnInitialized(o)
	return true
}

func (o *Orchestrator) additionalProductsFetched(retrieved []*Product) {
	if cb := o.additionalSuccess; cb != nil {
		o.additionalSuccess, o.additionalFailure = nil, nil
		cb()
	}
	if l, ok := o.listener.(AdditionalProductsListener); ok {
		l.OnAdditionalProductsFetched(retrieved)
	}
}

func (o *Orchestrator) failPurchase(p *Product, desc *PurchaseFailureDescription) {
	o.logger.Info("purchase failed",
		zap.String("productID", p.Definition.ID),
		zap.String("reason", string(desc.Reason)),
		zap.String("message", desc.Message))
	failureCtx := PurchaseFailureContext{Product: p, Failure: desc, Timestamp: o.now()}
	for _, hook := range o.failureHooks {
		hook(failureCtx)
	}
	o.listener.OnPurchaseFailed(p, desc)
}

func (o *Orchestrator) addDefinitions(defs []ProductDefinition) {
	for _, def := range defs {
		if def.ID == "" {
			continue
		}
		o.products.Add(NewProduct(def, ProductMetadata{}))
	}
}

func (o *Orchestrator) hasRecordOf(txID string) bool {
	if o.txLog == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.ledgerTimeout)
	defer cancel()
	return o.txLog.HasRecordOf(ctx, txID)
}

func (o *Orchestrator) recordTransaction(txID string) {
	if o.txLog == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.ledgerTimeout)
	defer cancel()
	o.txLog.Record(ctx, txID)
}

func (o *Orchestrator) unifiedReceipt(transactionID, payload string) string {
	if payload == "" {
		return ""
	}
	return FormatUnifiedReceipt(o.backend.Name(), transactionID, payload)
}

var (
	_ Controller      = (*Orchestrator)(nil)
	_ BackendCallback = (*Orchestrator)(nil)
)
