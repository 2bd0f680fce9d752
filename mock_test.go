package purchasing

import "context"

// mockBackend records orchestrator calls and lets tests answer them
type mockBackend struct {
	callback BackendCallback

	connectCalls  int
	retrieveCalls [][]ProductDefinition
	purchases     []Cart
	finished      []string
	fetchCalls    int
	entitlements  []ProductDefinition

	// onRetrieve, when set, answers RetrieveProducts synchronously
	onRetrieve func(defs []ProductDefinition)
	// onFetch, when set, answers FetchPurchases synchronously
	onFetch func()
}

func (m *mockBackend) Name() string { return "mock" }
func (m *mockBackend) SetCallback(cb BackendCallback) { m.callback = cb }
func (m *mockBackend) Connect() { m.connectCalls++ }

func (m *mockBackend) RetrieveProducts(defs []ProductDefinition) {
	m.retrieveCalls = append(m.retrieveCalls, defs)
	if m.onRetrieve != nil {
		m.onRetrieve(defs)
	}
}

func (m *mockBackend) Purchase(cart Cart, _ string) {
	m.purchases = append(m.purchases, cart)
}

func (m *mockBackend) FinishTransaction(_ ProductDefinition, transactionID string) {
	m.finished = append(m.finished, transactionID)
}

func (m *mockBackend) FetchPurchases() {
	m.fetchCalls++
	if m.onFetch != nil {
		m.onFetch()
	}
}

func (m *mockBackend) CheckEntitlement(def ProductDefinition) {
	m.entitlements = append(m.entitlements, def)
}

// mockListener records application callbacks
type mockListener struct {
	controller   Controller
	initCount    int
	initFailures []InitializationFailureReason
	processed    []PurchaseEvent
	failures     []*PurchaseFailureDescription
	finished     []*ConfirmedOrder
	deferred     []*DeferredOrder
	additional   [][]*Product
	checked      []Entitlement
	revoked      []*Product

	result ProcessingResult
}

func (l *mockListener) OnInitialized(c Controller) {
	l.controller = c
	l.initCount++
}

func (l *mockListener) OnInitializeFailed(reason InitializationFailureReason, _ string) {
	l.initFailures = append(l.initFailures, reason)
}

func (l *mockListener) ProcessPurchase(e PurchaseEvent) ProcessingResult {
	l.processed = append(l.processed, e)
	return l.result
}

func (l *mockListener) OnPurchaseFailed(_ *Product, d *PurchaseFailureDescription) {
	l.failures = append(l.failures, d)
}

func (l *mockListener) OnTransactionFinished(_ *Product, o *ConfirmedOrder) {
	l.finished = append(l.finished, o)
}

func (l *mockListener) OnPurchaseDeferred(_ *Product, o *DeferredOrder) {
	l.deferred = append(l.deferred, o)
}

func (l *mockListener) OnAdditionalProductsFetched(p []*Product) {
	l.additional = append(l.additional, p)
}

func (l *mockListener) OnEntitlementChecked(e Entitlement) {
	l.checked = append(l.checked, e)
}

func (l *mockListener) OnEntitlementRevoked(p *Product) {
	l.revoked = append(l.revoked, p)
}

// memoryLog is a TransactionLog over a map that can survive "restarts" by sharing it
type memoryLog struct {
	ids      map[string]bool
	recorded []string
}

func newMemoryLog() *memoryLog {
	return &memoryLog{ids: make(map[string]bool)}
}

func (m *memoryLog) HasRecordOf(_ context.Context, id string) bool {
	return id != "" && m.ids[id]
}

func (m *memoryLog) Record(_ context.Context, id string) {
	m.ids[id] = true
	m.recorded = append(m.recorded, id)
}
