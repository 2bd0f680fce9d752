package purchasing

import "time"

// ============================================================================
// Purchase Hook Context Types
// ============================================================================

// PurchaseContext contains information passed to purchase hooks
type PurchaseContext struct {
	Product   *Product
	Payload   string
	Timestamp time.Time
}

// ConfirmResultContext contains a confirmed purchase and its context
type ConfirmResultContext struct {
	Product   *Product
	Order     *ConfirmedOrder
	Timestamp time.Time
}

// PurchaseFailureContext contains a purchase failure and its context
type PurchaseFailureContext struct {
	Product   *Product
	Failure   *PurchaseFailureDescription
	Timestamp time.Time
}

// ============================================================================
// Purchase Hook Result Types
// ============================================================================

// BeforePurchaseHookResult represents the result of a "before purchase" hook.
// If Abort is true, the purchase fails with Reason and is never sent to the backend.
type BeforePurchaseHookResult struct {
	Abort   bool
	Reason  FailureReason
	Message string
}

// ============================================================================
// Purchase Hook Function Types
// ============================================================================

// BeforePurchaseHook is called before a purchase is forwarded to the backend
type BeforePurchaseHook func(PurchaseContext) *BeforePurchaseHookResult

// AfterConfirmHook is called after a transaction was recorded and finished.
// Any error returned is logged but does not affect the confirmation.
type AfterConfirmHook func(ConfirmResultContext) error

// PurchaseFailureHook is called for every failure delivered to the application
type PurchaseFailureHook func(PurchaseFailureContext)

// OnBeforePurchase registers a hook run before each purchase
func (o *Orchestrator) OnBeforePurchase(hook BeforePurchaseHook) *Orchestrator {
	o.beforePurchaseHooks = append(o.beforePurchaseHooks, hook)
	return o
}

// OnAfterConfirm registers a hook run after each confirmed purchase
func (o *Orchestrator) OnAfterConfirm(hook AfterConfirmHook) *Orchestrator {
	o.afterConfirmHooks = append(o.afterConfirmHooks, hook)
	return o
}

// OnPurchaseFailure registers a hook run for each purchase failure
func (o *Orchestrator) OnPurchaseFailure(hook PurchaseFailureHook) *Orchestrator {
	o.failureHooks = append(o.failureHooks, hook)
	return o
}
