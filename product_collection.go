package purchasing

// ProductCollection indexes products by canonical id and by store specific id.
// Lookups that miss return an UnknownProduct sentinel, never nil.
type ProductCollection struct {
	products  []*Product
	byID      map[string]*Product
	byStoreID map[string]*Product
}

// NewProductCollection creates a collection from products
func NewProductCollection(products ...*Product) *ProductCollection {
	c := &ProductCollection{
		byID:      make(map[string]*Product),
		byStoreID: make(map[string]*Product),
	}
	c.Add(products...)
	return c
}

// Add indexes products whose canonical id is not present yet and returns the ones added
func (c *ProductCollection) Add(products ...*Product) []*Product {
	var added []*Product
	for _, p := range products {
		if p == nil {
			continue
		}
		if _, exists := c.byID[p.Definition.ID]; exists {
			continue
		}
		c.products = append(c.products, p)
		c.byID[p.Definition.ID] = p
		c.byStoreID[p.Definition.StoreID()] = p
		added = append(added, p)
	}
	return added
}

// WithID returns the product with the canonical id
func (c *ProductCollection) WithID(id string) *Product {
	if p, ok := c.byID[id]; ok {
		return p
	}
	return UnknownProduct(id)
}

// WithStoreSpecificID returns the product with the backend id
func (c *ProductCollection) WithStoreSpecificID(storeSpecificID string) *Product {
	if p, ok := c.byStoreID[storeSpecificID]; ok {
		return p
	}
	return UnknownProduct(storeSpecificID)
}

// Lookup is WithID with an explicit found flag
func (c *ProductCollection) Lookup(id string) (*Product, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// LookupStoreSpecificID is WithStoreSpecificID with an explicit found flag
func (c *ProductCollection) LookupStoreSpecificID(storeSpecificID string) (*Product, bool) {
	p, ok := c.byStoreID[storeSpecificID]
	return p, ok
}

// All returns the products in insertion order
func (c *ProductCollection) All() []*Product {
	out := make([]*Product, len(c.products))
	copy(out, c.products)
	return out
}

// Definitions returns every product's definition in insertion order
func (c *ProductCollection) Definitions() []ProductDefinition {
	defs := make([]ProductDefinition, 0, len(c.products))
	for _, p := range c.products {
		defs = append(defs, p.Definition)
	}
	return defs
}

// Len returns the number of products
func (c *ProductCollection) Len() int { return len(c.products) }
