package purchasing

// ============================================================================
// Backend boundary
// ============================================================================

// Backend is the orchestrator's view of a storefront. Every method is
// fire-and-forget; results arrive later through the BackendCallback.
type Backend interface {
	// Name identifies the storefront in receipts and orders
	Name() string

	// SetCallback registers the receiver of all backend results.
	// Implementations must deliver callbacks on the dispatcher's logical thread.
	SetCallback(cb BackendCallback)

	Connect()
	RetrieveProducts(defs []ProductDefinition)
	Purchase(cart Cart, payload string)
	FinishTransaction(def ProductDefinition, transactionID string)
	FetchPurchases()
	CheckEntitlement(def ProductDefinition)
}

// BackendCallback receives backend results
type BackendCallback interface {
	OnProductsRetrieved(descs []ProductDescription)
	OnProductsRetrieveFailed(failure *RetrievalFailure)
	OnAllPurchasesRetrieved(purchased []ProductDescription)
	OnPurchasesFetchFailed(failure *RetrievalFailure)

	OnPurchaseSucceeded(storeSpecificID, receipt, transactionID string)
	OnPurchaseFailed(desc *PurchaseFailureDescription)
	OnPurchaseDeferred(storeSpecificID, receipt, transactionID string)

	OnEntitlementChecked(storeSpecificID string, status EntitlementStatus, message string)
	OnEntitlementRevoked(storeSpecificID string)
}

// ============================================================================
// Application boundary
// ============================================================================

// Listener is implemented by the application
type Listener interface {
	OnInitialized(c Controller)
	OnInitializeFailed(reason InitializationFailureReason, message string)

	// ProcessPurchase is called at most once per transaction id.
	// Returning Pending obliges the application to call ConfirmPendingPurchase later.
	ProcessPurchase(e PurchaseEvent) ProcessingResult

	OnPurchaseFailed(p *Product, desc *PurchaseFailureDescription)
}

// Controller is handed to the application once initialization succeeds
type Controller interface {
	Products() *ProductCollection
	InitiatePurchase(p *Product, payload string)
	InitiatePurchaseByID(productID, payload string)
	ConfirmPendingPurchase(p *Product) error
	FetchAdditionalProducts(defs []ProductDefinition, onSuccess func(), onFailure func(*RetrievalFailure))
	FetchPurchases()
	CheckEntitlement(p *Product) error
}

// Optional listener capabilities, detected with type assertions.

// TransactionEventListener is told when a transaction was finished at the backend
type TransactionEventListener interface {
	OnTransactionFinished(p *Product, order *ConfirmedOrder)
}

// DeferredPurchaseListener is told about purchases that await external approval
type DeferredPurchaseListener interface {
	OnPurchaseDeferred(p *Product, order *DeferredOrder)
}

// AdditionalProductsListener is told about product retrievals after initialization
type AdditionalProductsListener interface {
	OnAdditionalProductsFetched(products []*Product)
}

// EntitlementListener receives entitlement check results and revocations
type EntitlementListener interface {
	OnEntitlementChecked(e Entitlement)
	OnEntitlementRevoked(p *Product)
}

// ============================================================================
// Scheduling
// ============================================================================

// Dispatcher marshals work onto the single logical thread that owns all
// orchestrator, connection and queue state.
type Dispatcher interface {
	Dispatch(fn func())
}

// DispatcherFunc adapts a function to the Dispatcher interface
type DispatcherFunc func(fn func())

func (f DispatcherFunc) Dispatch(fn func()) { f(fn) }

type inlineDispatcher struct{}

func (inlineDispatcher) Dispatch(fn func()) { fn() }

// InlineDispatcher runs work immediately on the caller's goroutine.
// The caller's goroutine is then the logical thread, so nothing may be
// dispatched through it from timers or other goroutines.
var InlineDispatcher Dispatcher = inlineDispatcher{}
