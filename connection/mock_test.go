package connection

import (
	"time"

	purchasing "github.com/purchasekit/purchasing"
)

// mockClient records calls and lets tests drive connection callbacks by hand
type mockClient struct {
	onConnected    func()
	onDisconnected func(error)
	updates        func(PurchaseUpdate)

	startCalls    int
	queried       [][]purchasing.ProductDefinition
	purchaseCalls int
	acks          []string
	launched      []purchasing.Cart

	// connectResult, when set, answers StartConnection synchronously
	connectResult func() error
	products      []purchasing.ProductDescription
	purchases     []purchasing.ProductDescription
	queryErr      error
	entitlement   purchasing.EntitlementStatus
}

func (m *mockClient) Name() string { return "mock" }

func (m *mockClient) StartConnection(onConnected func(), onDisconnected func(error)) {
	m.startCalls++
	m.onConnected = onConnected
	m.onDisconnected = onDisconnected
	if m.connectResult == nil {
		return
	}
	if err := m.connectResult(); err != nil {
		onDisconnected(err)
		return
	}
	onConnected()
}

func (m *mockClient) QueryProducts(defs []purchasing.ProductDefinition, done func([]purchasing.ProductDescription, error)) {
	m.queried = append(m.queried, defs)
	if m.queryErr != nil {
		err := m.queryErr
		m.queryErr = nil
		done(nil, err)
		return
	}
	done(m.products, nil)
}

func (m *mockClient) QueryPurchases(done func([]purchasing.ProductDescription, error)) {
	m.purchaseCalls++
	done(m.purchases, nil)
}

func (m *mockClient) LaunchPurchase(cart purchasing.Cart, _ string) {
	m.launched = append(m.launched, cart)
}

func (m *mockClient) Acknowledge(_ purchasing.ProductDefinition, transactionID string) {
	m.acks = append(m.acks, transactionID)
}

func (m *mockClient) QueryEntitlement(_ purchasing.ProductDefinition, done func(purchasing.EntitlementStatus, string)) {
	done(m.entitlement, "")
}

func (m *mockClient) SetPurchaseUpdateHandler(h func(PurchaseUpdate)) {
	m.updates = h
}

// recordingCallback captures everything the connection reports upward
type recordingCallback struct {
	retrieved      [][]purchasing.ProductDescription
	retrieveFailed []*purchasing.RetrievalFailure
	fetched        [][]purchasing.ProductDescription
	fetchFailed    []*purchasing.RetrievalFailure
	succeeded      []string
	failed         []*purchasing.PurchaseFailureDescription
	deferred       []string
	entitlements   []purchasing.EntitlementStatus
	revoked        []string
}

func (r *recordingCallback) OnProductsRetrieved(d []purchasing.ProductDescription) {
	r.retrieved = append(r.retrieved, d)
}

func (r *recordingCallback) OnProductsRetrieveFailed(f *purchasing.RetrievalFailure) {
	r.retrieveFailed = append(r.retrieveFailed, f)
}

func (r *recordingCallback) OnAllPurchasesRetrieved(d []purchasing.ProductDescription) {
	r.fetched = append(r.fetched, d)
}

func (r *recordingCallback) OnPurchasesFetchFailed(f *purchasing.RetrievalFailure) {
	r.fetchFailed = append(r.fetchFailed, f)
}

func (r *recordingCallback) OnPurchaseSucceeded(storeSpecificID, _, transactionID string) {
	r.succeeded = append(r.succeeded, storeSpecificID+"/"+transactionID)
}

func (r *recordingCallback) OnPurchaseFailed(d *purchasing.PurchaseFailureDescription) {
	r.failed = append(r.failed, d)
}

func (r *recordingCallback) OnPurchaseDeferred(storeSpecificID, _, _ string) {
	r.deferred = append(r.deferred, storeSpecificID)
}

func (r *recordingCallback) OnEntitlementChecked(_ string, status purchasing.EntitlementStatus, _ string) {
	r.entitlements = append(r.entitlements, status)
}

func (r *recordingCallback) OnEntitlementRevoked(storeSpecificID string) {
	r.revoked = append(r.revoked, storeSpecificID)
}

// manualScheduler holds scheduled reconnects until the test fires them
type manualScheduler struct {
	delays  []time.Duration
	pending []func()
}

func (s *manualScheduler) schedule(delay time.Duration, fn func()) {
	s.delays = append(s.delays, delay)
	s.pending = append(s.pending, fn)
}

func (s *manualScheduler) fireNext() bool {
	if len(s.pending) == 0 {
		return false
	}
	fn := s.pending[0]
	s.pending = s.pending[1:]
	fn()
	return true
}
