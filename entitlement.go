package purchasing

// EntitlementStatus is the backend's answer to whether the user owns a product
type EntitlementStatus int

const (
	EntitlementUnknown EntitlementStatus = iota
	NotEntitled
	// EntitledUntilConsumed is a consumable bought but not consumed yet
	EntitledUntilConsumed
	// EntitledButNotFinished is owned but the transaction was never finished
	EntitledButNotFinished
	FullyEntitled
)

func (s EntitlementStatus) String() string {
	switch s {
	case NotEntitled:
		return "not_entitled"
	case EntitledUntilConsumed:
		return "entitled_until_consumed"
	case EntitledButNotFinished:
		return "entitled_but_not_finished"
	case FullyEntitled:
		return "fully_entitled"
	default:
		return "unknown"
	}
}

// Entitlement is the result of an entitlement check
type Entitlement struct {
	Product *Product
	// Order is nil unless the user is at least partially entitled
	Order   Order
	Status  EntitlementStatus
	Message string
}

// newEntitlement maps a status to the order that represents it
func newEntitlement(p *Product, status EntitlementStatus, message, storeName string) Entitlement {
	e := Entitlement{Product: p, Status: status, Message: message}
	cart, err := SingleItemCart(p)
	if err != nil {
		return e
	}
	switch status {
	case FullyEntitled:
		e.Order = NewConfirmedOrder(cart, p.Receipt, p.TransactionID, storeName)
	case EntitledUntilConsumed, EntitledButNotFinished:
		e.Order = NewPendingOrder(cart, p.Receipt, p.TransactionID, storeName)
	}
	return e
}
