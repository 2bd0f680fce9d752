package purchasing

// CartItem is a product with a quantity
type CartItem struct {
	product  *Product
	quantity int
}

// NewCartItem creates a cart item. The product must be non-nil and quantity at least one.
func NewCartItem(product *Product, quantity int) (CartItem, error) {
	if product == nil {
		return CartItem{}, ErrNilProduct
	}
	if quantity < 1 {
		return CartItem{}, ErrInvalidQuantity
	}
	return CartItem{product: product, quantity: quantity}, nil
}

// Product returns the item's product
func (i CartItem) Product() *Product { return i.product }

// Quantity returns the item's quantity
func (i CartItem) Quantity() int { return i.quantity }

// Equal compares items by product definition and quantity
func (i CartItem) Equal(other CartItem) bool {
	if i.quantity != other.quantity {
		return false
	}
	if i.product == other.product {
		return true
	}
	if i.product == nil || other.product == nil {
		return false
	}
	return i.product.Definition == other.product.Definition
}

// Cart is an immutable set of items being or having been ordered
type Cart struct {
	items []CartItem
}

// NewCart builds a cart from items. Duplicate items are collapsed.
func NewCart(items ...CartItem) (Cart, error) {
	if len(items) == 0 {
		return Cart{}, ErrEmptyCart
	}
	out := make([]CartItem, 0, len(items))
	for _, item := range items {
		if item.product == nil {
			return Cart{}, ErrNilProduct
		}
		if containsItem(out, item) {
			continue
		}
		out = append(out, item)
	}
	return Cart{items: out}, nil
}

// SingleItemCart is a convenience for the common one-product, quantity-one cart
func SingleItemCart(product *Product) (Cart, error) {
	item, err := NewCartItem(product, 1)
	if err != nil {
		return Cart{}, err
	}
	return NewCart(item)
}

// Items returns a copy of the cart's items
func (c Cart) Items() []CartItem {
	out := make([]CartItem, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of items
func (c Cart) Len() int { return len(c.items) }

// Equal reports whether both carts hold the same set of items, regardless of order.
func (c Cart) Equal(other Cart) bool {
	if len(c.items) != len(other.items) {
		return false
	}
	for _, item := range c.items {
		if !containsItem(other.items, item) {
			return false
		}
	}
	return true
}

func containsItem(items []CartItem, item CartItem) bool {
	for _, existing := range items {
		if existing.Equal(item) {
			return true
		}
	}
	return false
}
