package purchasing

import (
	"errors"
	"fmt"
)

// FailureReason classifies why a purchase failed
type FailureReason string

// Purchase failure reasons
const (
	ProductUnavailable      FailureReason = "product_unavailable"
	DuplicateTransaction    FailureReason = "duplicate_transaction"
	UserCancelled           FailureReason = "user_cancelled"
	PurchasingUnavailable   FailureReason = "purchasing_unavailable"
	PurchaseMissing         FailureReason = "purchase_missing"
	PaymentDeclined         FailureReason = "payment_declined"
	ExistingPurchasePending FailureReason = "existing_purchase_pending"
	SignatureInvalid        FailureReason = "signature_invalid"
	ValidationFailure       FailureReason = "validation_failure"
	UnknownFailure          FailureReason = "unknown"
)

// PurchaseFailureDescription is how backends and the orchestrator describe a failed purchase.
// ResponseCode carries the backend's own code when there is one.
type PurchaseFailureDescription struct {
	StoreSpecificID string        `json:"storeSpecificId"`
	Reason          FailureReason `json:"reason"`
	Message         string        `json:"message"`
	ResponseCode    int           `json:"responseCode,omitempty"`
}

func (d *PurchaseFailureDescription) Error() string {
	if d.ResponseCode != 0 {
		return fmt.Sprintf("%s: %s (response code %d)", d.Reason, d.Message, d.ResponseCode)
	}
	return fmt.Sprintf("%s: %s", d.Reason, d.Message)
}

// NewPurchaseFailure creates a failure description
func NewPurchaseFailure(storeSpecificID string, reason FailureReason, message string) *PurchaseFailureDescription {
	return &PurchaseFailureDescription{
		StoreSpecificID: storeSpecificID,
		Reason:          reason,
		Message:         message,
	}
}

// InitializationFailureReason classifies why initialization failed
type InitializationFailureReason string

const (
	InitPurchasingUnavailable InitializationFailureReason = "purchasing_unavailable"
	InitNoProductsAvailable   InitializationFailureReason = "no_products_available"
	InitAppNotKnown           InitializationFailureReason = "app_not_known"
)

// RetrievalFailureReason classifies a failed product retrieval or purchase fetch
type RetrievalFailureReason string

const (
	// BillingServiceUnavailable means connection attempts are exhausted
	BillingServiceUnavailable RetrievalFailureReason = "billing_service_unavailable"
	// BillingServiceDisconnected means the connection dropped but will be retried
	BillingServiceDisconnected RetrievalFailureReason = "billing_service_disconnected"
	// BillingServiceError means the backend answered with an error
	BillingServiceError RetrievalFailureReason = "billing_service_error"
)

// RetrievalFailure describes a failed retrieval
type RetrievalFailure struct {
	Reason  RetrievalFailureReason `json:"reason"`
	Message string                 `json:"message"`
}

func (f *RetrievalFailure) Error() string {
	return fmt.Sprintf("%s: %s", f.Reason, f.Message)
}

// Terminal reports whether the failure will not be resolved by a reconnect.
// Disconnected failures stay queued at the connection and are retried.
func (f *RetrievalFailure) Terminal() bool {
	return f.Reason != BillingServiceDisconnected
}

var (
	ErrNilProduct                 = errors.New("purchasing: product is nil")
	ErrInvalidQuantity            = errors.New("purchasing: quantity must be at least one")
	ErrEmptyCart                  = errors.New("purchasing: cart has no items")
	ErrMissingTransactionID       = errors.New("purchasing: product has no transaction id")
	ErrUnknownProduct             = errors.New("purchasing: unknown product")
	ErrEntitlementCheckInProgress = errors.New("purchasing: entitlement check already in progress")
	ErrNoProducts                 = errors.New("purchasing: no product definitions")
)
