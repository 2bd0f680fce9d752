package simulator

import (
	"time"

	purchasing "github.com/purchasekit/purchasing"
	"github.com/purchasekit/purchasing/connection"
)

// Event kinds recorded by App
const (
	EventInitialized         = "initialized"
	EventInitializeFailed    = "initialize_failed"
	EventPurchaseProcessed   = "purchase_processed"
	EventPurchaseFailed      = "purchase_failed"
	EventTransactionFinished = "transaction_finished"
	EventPurchaseDeferred    = "purchase_deferred"
	EventProductsAdded       = "products_added"
	EventEntitlementChecked  = "entitlement_checked"
	EventEntitlementRevoked  = "entitlement_revoked"
	EventConnectionState     = "connection_state"
)

// Event is one callback observed by the simulated application
type Event struct {
	Seq           int       `json:"seq"`
	Kind          string    `json:"kind"`
	ProductID     string    `json:"productId,omitempty"`
	TransactionID string    `json:"transactionId,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	Time          time.Time `json:"time"`
}

// App is the simulated application. It grants purchases immediately while
// auto-confirm is on and leaves them pending otherwise.
//
// App is not safe for concurrent use; it lives on the dispatcher's logical thread.
type App struct {
	autoConfirm bool
	initialized bool
	events      []Event
	now         func() time.Time
}

// NewApp creates an application that auto-confirms purchases
func NewApp() *App {
	return &App{autoConfirm: true, now: time.Now}
}

// SetAutoConfirm toggles whether purchases are completed on delivery
func (a *App) SetAutoConfirm(enabled bool) { a.autoConfirm = enabled }

// AutoConfirm reports whether purchases are completed on delivery
func (a *App) AutoConfirm() bool { return a.autoConfirm }

// Initialized reports whether OnInitialized has fired
func (a *App) Initialized() bool { return a.initialized }

// Events returns a copy of the recorded events, optionally only those after seq
func (a *App) Events(after int) []Event {
	out := make([]Event, 0, len(a.events))
	for _, e := range a.events {
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}

func (a *App) record(kind, productID, transactionID, detail string) {
	a.events = append(a.events, Event{
		Seq:           len(a.events) + 1,
		Kind:          kind,
		ProductID:     productID,
		TransactionID: transactionID,
		Detail:        detail,
		Time:          a.now(),
	})
}

func (a *App) OnInitialized(purchasing.Controller) {
	a.initialized = true
	a.record(EventInitialized, "", "", "")
}

func (a *App) OnInitializeFailed(reason purchasing.InitializationFailureReason, message string) {
	a.record(EventInitializeFailed, "", "", string(reason)+": "+message)
}

func (a *App) ProcessPurchase(e purchasing.PurchaseEvent) purchasing.ProcessingResult {
	result := purchasing.Pending
	if a.autoConfirm {
		result = purchasing.Complete
	}
	a.record(EventPurchaseProcessed, e.Product.Definition.ID, e.Order.Info().TransactionID, result.String())
	return result
}

func (a *App) OnPurchaseFailed(p *purchasing.Product, d *purchasing.PurchaseFailureDescription) {
	a.record(EventPurchaseFailed, p.Definition.ID, "", d.Error())
}

func (a *App) OnTransactionFinished(p *purchasing.Product, o *purchasing.ConfirmedOrder) {
	a.record(EventTransactionFinished, p.Definition.ID, o.Info().TransactionID, "")
}

func (a *App) OnPurchaseDeferred(p *purchasing.Product, o *purchasing.DeferredOrder) {
	a.record(EventPurchaseDeferred, p.Definition.ID, o.Info().TransactionID, "")
}

func (a *App) OnAdditionalProductsFetched(products []*purchasing.Product) {
	for _, p := range products {
		a.record(EventProductsAdded, p.Definition.ID, "", "")
	}
}

func (a *App) OnEntitlementChecked(e purchasing.Entitlement) {
	a.record(EventEntitlementChecked, e.Product.Definition.ID, "", e.Status.String())
}

func (a *App) OnEntitlementRevoked(p *purchasing.Product) {
	a.record(EventEntitlementRevoked, p.Definition.ID, "", "")
}

// OnStateChange is a connection.StateHook
func (a *App) OnStateChange(change connection.StateChange) {
	detail := change.From.String() + " -> " + change.To.String()
	if change.Err != nil {
		detail += ": " + change.Err.Error()
	}
	a.record(EventConnectionState, "", "", detail)
}

var (
	_ purchasing.Listener                   = (*App)(nil)
	_ purchasing.TransactionEventListener   = (*App)(nil)
	_ purchasing.DeferredPurchaseListener   = (*App)(nil)
	_ purchasing.AdditionalProductsListener = (*App)(nil)
	_ purchasing.EntitlementListener        = (*App)(nil)
)
