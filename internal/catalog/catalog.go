// Package catalog is the client for the external commerce catalog service.
//
// The catalog is a shared, externally rate-limited resource, so all requests
// go through one token-bucket limiter. The package also builds the per-batch
// index that amortizes the cost of the paginated product listing across all
// records of a feed batch.
package catalog

// Product is a catalog product with its sellable variants.
type Product struct {
	ID       int64     `json:"id"`
	Variants []Variant `json:"variants"`
}

// Variant is one sellable variant of a product. Its SKU is the feed-side
// identifier; the inventory item ID is the handle inventory levels are set on.
type Variant struct {
	ID              int64  `json:"id"`
	SKU             string `json:"sku"`
	InventoryItemID int64  `json:"inventory_item_id"`
}

// Location is a stock location known to the catalog.
type Location struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Order is a downstream order, looked up by its external order number.
type Order struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// FulfillmentOrder groups the line items of an order eligible for shipment
// confirmation.
type FulfillmentOrder struct {
	ID        int64             `json:"id"`
	LineItems []FulfillmentLine `json:"line_items"`
}

// FulfillmentLine is one line item of a fulfillment order.
type FulfillmentLine struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

// FulfillmentParams are the inputs to a fulfillment creation call.
type FulfillmentParams struct {
	FulfillmentOrderID int64
	LineItems          []FulfillmentLine
	NotifyCustomer     bool
}
