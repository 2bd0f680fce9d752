package purchasing

// OrderState names the lifecycle stage of an order
type OrderState int

const (
	OrderPending OrderState = iota
	OrderConfirmed
	OrderDeferred
	OrderFailed
)

func (s OrderState) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderConfirmed:
		return "confirmed"
	case OrderDeferred:
		return "deferred"
	case OrderFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PurchasedProductInfo describes what one cart item paid out.
// Known is false for the unknown sentinel.
type PurchasedProductInfo struct {
	ProductID       string      `json:"productId"`
	StoreSpecificID string      `json:"storeSpecificId"`
	Type            ProductType `json:"type"`
	Quantity        int         `json:"quantity"`
	Known           bool        `json:"known"`
}

// UnknownPurchasedProductInfo fills slots for cart items without a resolvable store id
var UnknownPurchasedProductInfo = PurchasedProductInfo{Type: Unknown}

// OrderInfo carries the backend's record of a purchase
type OrderInfo struct {
	Receipt           string                 `json:"receipt"`
	TransactionID     string                 `json:"transactionId"`
	StoreName         string                 `json:"storeName"`
	PurchasedProducts []PurchasedProductInfo `json:"purchasedProducts,omitempty"`
}

// Order is the lifecycle record of a cart purchase
type Order interface {
	Cart() Cart
	Info() OrderInfo
	State() OrderState
}

type baseOrder struct {
	cart Cart
	info OrderInfo
}

func (o baseOrder) Cart() Cart { return o.cart }

// Info returns a copy of the order info
func (o baseOrder) Info() OrderInfo {
	info := o.info
	if o.info.PurchasedProducts != nil {
		info.PurchasedProducts = append([]PurchasedProductInfo(nil), o.info.PurchasedProducts...)
	}
	return info
}

// PendingOrder is a purchase the backend reported as successful that the
// application has not acknowledged yet.
type PendingOrder struct{ baseOrder }

// NewPendingOrder creates a pending order and computes per-item payout info from the cart
func NewPendingOrder(cart Cart, receipt, transactionID, storeName string) *PendingOrder {
	return &PendingOrder{baseOrder{cart: cart, info: newOrderInfo(cart, receipt, transactionID, storeName)}}
}

func (o *PendingOrder) State() OrderState { return OrderPending }

// Confirm promotes the order. The payout info is carried over as is.
func (o *PendingOrder) Confirm() *ConfirmedOrder {
	return &ConfirmedOrder{baseOrder{cart: o.cart, info: o.Info()}}
}

// ConfirmedOrder is a fully acknowledged purchase
type ConfirmedOrder struct{ baseOrder }

// NewConfirmedOrder creates a confirmed order and computes per-item payout info from the cart
func NewConfirmedOrder(cart Cart, receipt, transactionID, storeName string) *ConfirmedOrder {
	return &ConfirmedOrder{baseOrder{cart: cart, info: newOrderInfo(cart, receipt, transactionID, storeName)}}
}

func (o *ConfirmedOrder) State() OrderState { return OrderConfirmed }

// DeferredOrder needs external approval before it can become pending. It must not be granted.
type DeferredOrder struct{ baseOrder }

// NewDeferredOrder creates a deferred order
func NewDeferredOrder(cart Cart, receipt, transactionID, storeName string) *DeferredOrder {
	return &DeferredOrder{baseOrder{cart: cart, info: OrderInfo{
		Receipt:       receipt,
		TransactionID: transactionID,
		StoreName:     storeName,
	}}}
}

func (o *DeferredOrder) State() OrderState { return OrderDeferred }

// FailedOrder is a terminal purchase failure
type FailedOrder struct {
	baseOrder
	Reason  FailureReason
	Details string
}

// NewFailedOrder creates a failed order for a cart that never produced a transaction
func NewFailedOrder(cart Cart, reason FailureReason, details string) *FailedOrder {
	return &FailedOrder{baseOrder: baseOrder{cart: cart}, Reason: reason, Details: details}
}

// FailedOrderFrom fails an existing order, keeping its receipt and transaction id
func FailedOrderFrom(order Order, reason FailureReason, details string) *FailedOrder {
	info := order.Info()
	info.PurchasedProducts = nil
	return &FailedOrder{baseOrder: baseOrder{cart: order.Cart(), info: info}, Reason: reason, Details: details}
}

func (o *FailedOrder) State() OrderState { return OrderFailed }

func newOrderInfo(cart Cart, receipt, transactionID, storeName string) OrderInfo {
	return OrderInfo{
		Receipt:           receipt,
		TransactionID:     transactionID,
		StoreName:         storeName,
		PurchasedProducts: purchasedProductInfo(cart),
	}
}

func purchasedProductInfo(cart Cart) []PurchasedProductInfo {
	infos := make([]PurchasedProductInfo, 0, cart.Len())
	for _, item := range cart.items {
		def := item.product.Definition
		if def.StoreID() == "" {
			infos = append(infos, UnknownPurchasedProductInfo)
			continue
		}
		infos = append(infos, PurchasedProductInfo{
			ProductID:       def.ID,
			StoreSpecificID: def.StoreID(),
			Type:            def.Type,
			Quantity:        item.quantity,
			Known:           true,
		})
	}
	return infos
}

var (
	_ Order = (*PendingOrder)(nil)
	_ Order = (*ConfirmedOrder)(nil)
	_ Order = (*DeferredOrder)(nil)
	_ Order = (*FailedOrder)(nil)
)
