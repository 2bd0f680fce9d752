package fakestore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	purchasing "github.com/purchasekit/purchasing"
	"github.com/purchasekit/purchasing/connection"
)

const (
	// Name is the store name stamped on unified receipts
	Name = "fake"
	// Receipt is the raw receipt payload of every fake purchase
	Receipt = "ThisIsFakeReceiptData"
)

var (
	ErrUnknownTransaction = errors.New("fakestore: unknown pending transaction")
	// ErrConnectionDropped is reported to the connection when Drop is called without an error
	ErrConnectionDropped = errors.New("fakestore: connection dropped")
)

// Purchase is a transaction the store holds, owned or awaiting approval
type Purchase struct {
	Definition    purchasing.ProductDefinition `json:"definition"`
	TransactionID string                       `json:"transactionId"`
	Payload       string                       `json:"payload,omitempty"`
	Acknowledged  bool                         `json:"acknowledged"`
}

// Store is a scriptable fake storefront. It is safe for concurrent use;
// callbacks are always invoked without the store's lock held.
type Store struct {
	mu     sync.Mutex
	logger *zap.Logger
	newTx  func() string

	catalog     map[string]purchasing.ProductMetadata
	unavailable map[string]bool

	mode          Mode
	declineReason purchasing.FailureReason

	connected      bool
	connectScript  []error
	onDisconnected func(error)
	updates        func(connection.PurchaseUpdate)

	owned        map[string]*Purchase
	pending      map[string]*Purchase
	acknowledged []string
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProduct lists a product with explicit metadata. Products not listed get
// generated metadata.
func WithProduct(storeSpecificID string, metadata purchasing.ProductMetadata) Option {
	return func(s *Store) {
		s.catalog[storeSpecificID] = metadata
	}
}

// WithUnavailable marks products the store will not report
func WithUnavailable(storeSpecificIDs ...string) Option {
	return func(s *Store) {
		for _, id := range storeSpecificIDs {
			s.unavailable[id] = true
		}
	}
}

// WithMode sets the initial purchase mode. Default: ModeApprove.
func WithMode(mode Mode) Option {
	return func(s *Store) {
		s.mode = mode
	}
}

// WithTransactionIDs overrides transaction id generation. Default: random UUIDs.
func WithTransactionIDs(next func() string) Option {
	return func(s *Store) {
		if next != nil {
			s.newTx = next
		}
	}
}

// New creates a fake store
func New(opts ...Option) *Store {
	s := &Store{
		logger:        zap.NewNop(),
		newTx:         uuid.NewString,
		catalog:       make(map[string]purchasing.ProductMetadata),
		unavailable:   make(map[string]bool),
		declineReason: purchasing.UserCancelled,
		owned:         make(map[string]*Purchase),
		pending:       make(map[string]*Purchase),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultMetadata is the listing reported for products without explicit metadata
func DefaultMetadata(productID string) purchasing.ProductMetadata {
	return purchasing.ProductMetadata{
		LocalizedPriceString: "$0.01",
		LocalizedTitle:       "Fake title for " + productID,
		LocalizedDescription: "Fake description",
		ISOCurrencyCode:      "USD",
		LocalizedPrice:       decimal.RequireFromString("0.01"),
	}
}

// ============================================================================
// Scripting
// ============================================================================

// ScriptConnect queues the outcomes of the next connection attempts. A nil
// entry succeeds; once the script runs out every attempt succeeds.
func (s *Store) ScriptConnect(outcomes ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectScript = append(s.connectScript, outcomes...)
}

// Drop severs an established connection
func (s *Store) Drop(err error) {
	if err == nil {
		err = ErrConnectionDropped
	}
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	onDisconnected := s.onDisconnected
	s.mu.Unlock()

	s.logger.Info("fake store connection dropped", zap.Error(err))
	if onDisconnected != nil {
		onDisconnected(err)
	}
}

// Connected reports whether a connection is established
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SetMode changes how launched purchases are answered. reason is used by
// ModeDecline and defaults to UserCancelled.
func (s *Store) SetMode(mode Mode, reason purchasing.FailureReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	if reason == "" {
		reason = purchasing.UserCancelled
	}
	s.declineReason = reason
}

// Mode returns the current purchase mode
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetAvailable toggles whether a product is reported
func (s *Store) SetAvailable(storeSpecificID string, available bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if available {
		delete(s.unavailable, storeSpecificID)
		return
	}
	s.unavailable[storeSpecificID] = true
}

// AddPurchase grants def as if it was bought elsewhere, e.g. on another device,
// and returns the new transaction id. The purchase is not pushed; it shows up
// with the next product retrieval or purchase fetch.
func (s *Store) AddPurchase(def purchasing.ProductDefinition) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	txID := s.newTx()
	s.owned[def.StoreID()] = &Purchase{Definition: def, TransactionID: txID}
	return txID
}

// Approve completes a pending purchase
func (s *Store) Approve(transactionID string) error {
	s.mu.Lock()
	p, ok := s.pending[transactionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, transactionID)
	}
	delete(s.pending, transactionID)
	s.owned[p.Definition.StoreID()] = p
	updates := s.updates
	s.mu.Unlock()

	emit(updates, succeeded(p))
	return nil
}

// Decline fails a pending purchase with reason
func (s *Store) Decline(transactionID string, reason purchasing.FailureReason) error {
	s.mu.Lock()
	p, ok := s.pending[transactionID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, transactionID)
	}
	delete(s.pending, transactionID)
	updates := s.updates
	s.mu.Unlock()

	if reason == "" {
		reason = purchasing.UserCancelled
	}
	emit(updates, failed(p.Definition.StoreID(), reason, "failed a fake store purchase"))
	return nil
}

// Revoke removes an owned purchase and pushes a revocation. It reports whether
// anything was owned.
func (s *Store) Revoke(storeSpecificID string) bool {
	s.mu.Lock()
	_, ok := s.owned[storeSpecificID]
	delete(s.owned, storeSpecificID)
	updates := s.updates
	s.mu.Unlock()

	if ok {
		emit(updates, connection.PurchaseUpdate{Kind: connection.EntitlementRevoked, StoreSpecificID: storeSpecificID})
	}
	return ok
}

// Pending returns purchases awaiting Approve or Decline, ordered by transaction id
func (s *Store) Pending() []Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedCopy(s.pending)
}

// Owned returns the purchases the store holds, ordered by transaction id
func (s *Store) Owned() []Purchase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedCopy(s.owned)
}

// Acknowledged returns the acknowledged transaction ids in call order
func (s *Store) Acknowledged() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acknowledged...)
}

// ============================================================================
// connection.BillingClient
// ============================================================================

// Name returns "fake"
func (s *Store) Name() string { return Name }

// SetPurchaseUpdateHandler registers the receiver of pushed purchase updates
func (s *Store) SetPurchaseUpdateHandler(h func(connection.PurchaseUpdate)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = h
}

// StartConnection consumes the next scripted outcome
func (s *Store) StartConnection(onConnected func(), onDisconnected func(error)) {
	s.mu.Lock()
	var err error
	if len(s.connectScript) > 0 {
		err = s.connectScript[0]
		s.connectScript = s.connectScript[1:]
	}
	s.onDisconnected = onDisconnected
	s.connected = err == nil
	s.mu.Unlock()

	if err != nil {
		s.logger.Info("fake store refused connection", zap.Error(err))
		onDisconnected(err)
		return
	}
	onConnected()
}

// QueryProducts reports every available definition. Owned purchases carry
// their receipt and transaction id.
func (s *Store) QueryProducts(defs []purchasing.ProductDefinition, done func([]purchasing.ProductDescription, error)) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		done(nil, connection.ErrServiceDisconnected)
		return
	}
	descs := make([]purchasing.ProductDescription, 0, len(defs))
	for _, def := range defs {
		storeID := def.StoreID()
		if s.unavailable[storeID] || s.unavailable[def.ID] {
			continue
		}
		metadata, ok := s.catalog[storeID]
		if !ok {
			metadata = DefaultMetadata(def.ID)
		}
		desc := purchasing.ProductDescription{StoreSpecificID: storeID, Type: def.Type, Metadata: metadata}
		if p, owned := s.owned[storeID]; owned {
			desc.Receipt = Receipt
			desc.TransactionID = p.TransactionID
		}
		descs = append(descs, desc)
	}
	s.mu.Unlock()

	done(descs, nil)
}

// QueryPurchases reports every owned purchase
func (s *Store) QueryPurchases(done func([]purchasing.ProductDescription, error)) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		done(nil, connection.ErrServiceDisconnected)
		return
	}
	owned := sortedCopy(s.owned)
	s.mu.Unlock()

	descs := make([]purchasing.ProductDescription, 0, len(owned))
	for _, p := range owned {
		descs = append(descs, purchasing.ProductDescription{
			StoreSpecificID: p.Definition.StoreID(),
			Type:            p.Definition.Type,
			Receipt:         Receipt,
			TransactionID:   p.TransactionID,
		})
	}
	done(descs, nil)
}

// LaunchPurchase answers according to the current mode. Only the cart's first
// item is bought.
func (s *Store) LaunchPurchase(cart purchasing.Cart, payload string) {
	items := cart.Items()
	if len(items) == 0 {
		return
	}
	def := items[0].Product().Definition
	storeID := def.StoreID()

	s.mu.Lock()
	updates := s.updates
	var update connection.PurchaseUpdate
	switch {
	case !s.connected:
		update = failed(storeID, purchasing.PurchasingUnavailable, "fake store is not connected")
	case s.unavailable[storeID]:
		update = failed(storeID, purchasing.ProductUnavailable, "product is not available in the fake store")
	case s.owned[storeID] != nil && def.Type == purchasing.Consumable:
		update = failed(storeID, purchasing.ExistingPurchasePending, "previous purchase was not consumed")
	case s.owned[storeID] != nil:
		update = failed(storeID, purchasing.DuplicateTransaction, "item already owned")
	default:
		p := &Purchase{Definition: def, TransactionID: s.newTx(), Payload: payload}
		switch s.mode {
		default:
			s.owned[storeID] = p
			update = succeeded(p)
		case ModeDecline:
			update = failed(storeID, s.declineReason, "failed a fake store purchase")
		case ModeDefer:
			s.pending[p.TransactionID] = p
			update = connection.PurchaseUpdate{
				Kind:            connection.PurchaseDeferred,
				StoreSpecificID: storeID,
				Receipt:         Receipt,
				TransactionID:   p.TransactionID,
			}
		case ModeManual:
			s.pending[p.TransactionID] = p
			s.mu.Unlock()
			s.logger.Debug("fake purchase awaiting approval", zap.String("transactionID", p.TransactionID))
			return
		}
	}
	s.mu.Unlock()

	s.logger.Debug("fake purchase answered",
		zap.String("storeSpecificID", storeID),
		zap.String("kind", update.Kind.String()))
	emit(updates, update)
}

// Acknowledge finishes a transaction. Consumables are consumed and leave the
// owned set; other products stay owned.
func (s *Store) Acknowledge(def purchasing.ProductDefinition, transactionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acknowledged = append(s.acknowledged, transactionID)
	p, ok := s.owned[def.StoreID()]
	if !ok || p.TransactionID != transactionID {
		return
	}
	if p.Definition.Type == purchasing.Consumable {
		delete(s.owned, def.StoreID())
		return
	}
	p.Acknowledged = true
}

// QueryEntitlement derives the status from the owned set
func (s *Store) QueryEntitlement(def purchasing.ProductDefinition, done func(purchasing.EntitlementStatus, string)) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		done(purchasing.EntitlementUnknown, "fake store is not connected")
		return
	}
	p, ok := s.owned[def.StoreID()]
	status := purchasing.NotEntitled
	switch {
	case !ok:
	case p.Acknowledged:
		status = purchasing.FullyEntitled
	case p.Definition.Type == purchasing.Consumable:
		status = purchasing.EntitledUntilConsumed
	default:
		status = purchasing.EntitledButNotFinished
	}
	s.mu.Unlock()

	done(status, "")
}

func succeeded(p *Purchase) connection.PurchaseUpdate {
	return connection.PurchaseUpdate{
		Kind:            connection.PurchaseSucceeded,
		StoreSpecificID: p.Definition.StoreID(),
		Receipt:         Receipt,
		TransactionID:   p.TransactionID,
	}
}

func failed(storeID string, reason purchasing.FailureReason, message string) connection.PurchaseUpdate {
	return connection.PurchaseUpdate{
		Kind:            connection.PurchaseFailed,
		StoreSpecificID: storeID,
		Failure:         purchasing.NewPurchaseFailure(storeID, reason, message),
	}
}

func emit(updates func(connection.PurchaseUpdate), u connection.PurchaseUpdate) {
	if updates != nil {
		updates(u)
	}
}

func sortedCopy(m map[string]*Purchase) []Purchase {
	out := make([]Purchase, 0, len(m))
	for _, p := range m {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TransactionID < out[j].TransactionID })
	return out
}

var _ connection.BillingClient = (*Store)(nil)
