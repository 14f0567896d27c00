package feed

// AvailabilityAttribute is the product attribute carried by attribute feeds
// and derived from inventory quantities.
const AvailabilityAttribute = "availability"

// Availability labels, from no stock to freely sellable.
const (
	AvailabilityOnOrder   = "On Order"
	AvailabilityLimited   = "Limited Stock"
	AvailabilityAvailable = "Available"
)

// limitedStockThreshold is the quantity below which stock counts as limited.
const limitedStockThreshold = 12

// AvailabilityForQuantity derives the availability label from a stock
// quantity. Zero stock is on order, anything below the threshold is limited.
func AvailabilityForQuantity(qty int) string {
	switch {
	case qty == 0:
		return AvailabilityOnOrder
	case qty < limitedStockThreshold:
		return AvailabilityLimited
	default:
		return AvailabilityAvailable
	}
}
