package connection

import (
	"errors"

	purchasing "github.com/purchasekit/purchasing"
)

// ErrServiceDisconnected is returned by BillingClient queries interrupted by a disconnect.
// The Connection re-submits such queries.
var ErrServiceDisconnected = errors.New("connection: billing service disconnected")

// BillingClient is the seam to a storefront's native SDK. Implementations may
// invoke callbacks from any goroutine.
type BillingClient interface {
	Name() string

	// StartConnection begins connecting. Exactly one of the callbacks is invoked
	// per attempt; onDisconnected may also fire later when an established link drops.
	StartConnection(onConnected func(), onDisconnected func(err error))

	QueryProducts(defs []purchasing.ProductDefinition, done func([]purchasing.ProductDescription, error))
	QueryPurchases(done func([]purchasing.ProductDescription, error))
	LaunchPurchase(cart purchasing.Cart, payload string)
	Acknowledge(def purchasing.ProductDefinition, transactionID string)
	QueryEntitlement(def purchasing.ProductDefinition, done func(purchasing.EntitlementStatus, string))

	// SetPurchaseUpdateHandler registers the receiver of unsolicited purchase updates
	SetPurchaseUpdateHandler(h func(PurchaseUpdate))
}

// PurchaseUpdateKind classifies a purchase update
type PurchaseUpdateKind int

const (
	PurchaseSucceeded PurchaseUpdateKind = iota
	PurchaseFailed
	PurchaseDeferred
	EntitlementRevoked
)

func (k PurchaseUpdateKind) String() string {
	switch k {
	case PurchaseSucceeded:
		return "succeeded"
	case PurchaseFailed:
		return "failed"
	case PurchaseDeferred:
		return "deferred"
	case EntitlementRevoked:
		return "revoked"
	default:
		return "unknown"
	}
}

// PurchaseUpdate is a purchase result pushed by the billing client.
// Failure is set only for PurchaseFailed.
type PurchaseUpdate struct {
	Kind            PurchaseUpdateKind
	StoreSpecificID string
	Receipt         string
	TransactionID   string
	Failure         *purchasing.PurchaseFailureDescription
	// ResponseCode is the client's own result code, 0 when it has none
	ResponseCode    int
}
