package purchasing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ProductType categorizes a product by how its purchase is fulfilled
type ProductType int

const (
	// Consumable products can be bought repeatedly and must be consumed at the backend
	Consumable ProductType = iota
	// NonConsumable products are bought once and owned permanently
	NonConsumable
	// Subscription products grant access for a renewable period
	Subscription
	// Unknown is used for products the backend reported but that were never defined
	Unknown
)

func (t ProductType) String() string {
	switch t {
	case Consumable:
		return "consumable"
	case NonConsumable:
		return "non_consumable"
	case Subscription:
		return "subscription"
	default:
		return "unknown"
	}
}

// ParseProductType converts a type name into a ProductType.
// Matching is case-insensitive and accepts the "nonconsumable" spelling.
func ParseProductType(s string) (ProductType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "consumable":
		return Consumable, nil
	case "non_consumable", "nonconsumable", "non-consumable":
		return NonConsumable, nil
	case "subscription":
		return Subscription, nil
	case "unknown", "":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("unknown product type %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (t ProductType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *ProductType) UnmarshalText(text []byte) error {
	parsed, err := ParseProductType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ProductDefinition identifies a product both by its canonical id and by the id
// the backend knows it under.
type ProductDefinition struct {
	ID              string      `json:"id" yaml:"id"`
	StoreSpecificID string      `json:"storeSpecificId,omitempty" yaml:"storeSpecificId,omitempty"`
	Type            ProductType `json:"type" yaml:"type"`
}

// NewProductDefinition creates a definition whose store specific id defaults to id.
func NewProductDefinition(id string, productType ProductType) ProductDefinition {
	return ProductDefinition{ID: id, StoreSpecificID: id, Type: productType}
}

// StoreID returns the backend-specific id, falling back to the canonical id.
func (d ProductDefinition) StoreID() string {
	if d.StoreSpecificID != "" {
		return d.StoreSpecificID
	}
	return d.ID
}

// ProductMetadata holds the localized store listing of a product
type ProductMetadata struct {
	LocalizedPriceString string          `json:"localizedPriceString"`
	LocalizedTitle       string          `json:"localizedTitle"`
	LocalizedDescription string          `json:"localizedDescription"`
	ISOCurrencyCode      string          `json:"isoCurrencyCode"`
	LocalizedPrice       decimal.Decimal `json:"localizedPrice"`
}

// ProductDescription is what a backend reports for a product it knows about,
// either from a product retrieval or from a purchase fetch.
type ProductDescription struct {
	StoreSpecificID string          `json:"storeSpecificId"`
	Type            ProductType     `json:"type"`
	Metadata        ProductMetadata `json:"metadata"`
	Receipt         string          `json:"receipt,omitempty"`
	TransactionID   string          `json:"transactionId,omitempty"`
}

// Product is the orchestrator's mutable view of a purchasable item.
//
// Products are owned by a ProductCollection and must only be mutated from the
// dispatcher's logical thread.
type Product struct {
	Definition          ProductDefinition `json:"definition"`
	Metadata            ProductMetadata   `json:"metadata"`
	AvailableToPurchase bool              `json:"availableToPurchase"`
	Receipt             string            `json:"receipt,omitempty"`
	TransactionID       string            `json:"transactionId,omitempty"`

	known bool
}

// NewProduct creates a known product from its definition
func NewProduct(def ProductDefinition, metadata ProductMetadata) *Product {
	if def.StoreSpecificID == "" {
		def.StoreSpecificID = def.ID
	}
	return &Product{Definition: def, Metadata: metadata, known: true}
}

// UnknownProduct returns a fresh sentinel for an id that is not in the index.
// The sentinel is never available to purchase.
func UnknownProduct(id string) *Product {
	return &Product{
		Definition: ProductDefinition{ID: id, StoreSpecificID: id, Type: Unknown},
	}
}

// IsKnown reports whether the product came from a definition or backend description
// rather than an index miss.
func (p *Product) IsKnown() bool {
	return p != nil && p.known
}

// HasReceipt reports whether the product carries a receipt
func (p *Product) HasReceipt() bool {
	return p != nil && p.Receipt != ""
}

func (p *Product) clearPurchase() {
	p.Receipt = ""
	p.TransactionID = ""
}

func (p *Product) String() string {
	if p == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (%s)", p.Definition.ID, p.Definition.StoreID())
}

// UnifiedReceipt is the receipt format stamped onto products after a purchase.
// It wraps the backend's raw payload with the store name and transaction id.
type UnifiedReceipt struct {
	Store         string `json:"Store"`
	TransactionID string `json:"TransactionID"`
	Payload       string `json:"Payload"`
}

// FormatUnifiedReceipt encodes a unified receipt for the given store and payload
func FormatUnifiedReceipt(store, transactionID, payload string) string {
	data, err := json.Marshal(UnifiedReceipt{Store: store, TransactionID: transactionID, Payload: payload})
	if err != nil {
		return ""
	}
	return string(data)
}

// ParseUnifiedReceipt decodes a receipt produced by FormatUnifiedReceipt
func ParseUnifiedReceipt(receipt string) (UnifiedReceipt, error) {
	var r UnifiedReceipt
	if err := json.Unmarshal([]byte(receipt), &r); err != nil {
		return UnifiedReceipt{}, fmt.Errorf("failed to parse receipt: %w", err)
	}
	return r, nil
}

// ProcessingResult is returned by the application after it sees a purchase
type ProcessingResult int

const (
	// Complete means the application granted the purchase; it will be recorded and finished
	Complete ProcessingResult = iota
	// Pending means the application will call ConfirmPendingPurchase later
	Pending
)

func (r ProcessingResult) String() string {
	if r == Pending {
		return "pending"
	}
	return "complete"
}

// PurchaseEvent is handed to the application for every purchase that is new to it
type PurchaseEvent struct {
	Product *Product
	Order   *PendingOrder
}
