// Package feed is the implementation of the feed model and parsers.
// A feed file is a structured XML document dropped by an upstream trading
// partner; parsing turns it into a batch of typed records with per-record
// fault isolation, so one malformed record never aborts its batch.
package feed

// Kind selects the parser variant for a feed file.
type Kind string

const (
	// KindInventory is a plain or package/bundle inventory allocation feed.
	KindInventory Kind = "inventory"
	// KindOrderStatus is an order status feed.
	KindOrderStatus Kind = "order-status"
	// KindAttribute is a product custom-attribute feed.
	KindAttribute Kind = "attribute"
)

// Valid reports whether k names a known feed kind.
func (k Kind) Valid() bool {
	switch k {
	case KindInventory, KindOrderStatus, KindAttribute:
		return true
	}
	return false
}

// RecordKind tags the variant of a Record.
type RecordKind string

const (
	// RecordInventory is a plain inventory allocation for a single SKU.
	RecordInventory RecordKind = "inventory"
	// RecordPackage is a package/bundle allocation computed from its items.
	RecordPackage RecordKind = "package"
	// RecordOrderStatus is an upstream order status notification.
	RecordOrderStatus RecordKind = "order-status"
	// RecordAttribute is a product attribute (metafield) update.
	RecordAttribute RecordKind = "attribute"
)

// StatusCompleted is the upstream order status that triggers fulfillment.
const StatusCompleted = "COMPLETED"

// Result classifies the outcome of processing a single record.
type Result string

const (
	// ResultApplied means the downstream state change was issued successfully.
	ResultApplied Result = "applied"
	// ResultSkipped means the record was intentionally not applied.
	ResultSkipped Result = "skipped"
	// ResultFailed means the record could not be applied.
	ResultFailed Result = "failed"
)

// Problem marks a record that could not be fully parsed.
// Such records still flow through the pipeline so their outcome is reported.
type Problem struct {
	Result Result `json:"result"`
	Reason string `json:"reason"`
}

// PackageItem is one constituent of a package/bundle record.
type PackageItem struct {
	SKU string `json:"sku"`
	Qty int    `json:"qty"`
}

// Record is a tagged union over the feed record variants.
// Only the fields of the variant named by Kind are meaningful.
type Record struct {
	Kind RecordKind `json:"kind"`

	// Inventory and package variants.
	ProductID  string        `json:"productId,omitempty"`
	Allocation int           `json:"allocation,omitempty"`
	Items      []PackageItem `json:"items,omitempty"`

	// Order status variant.
	OrderNo string `json:"orderNo,omitempty"`
	Status  string `json:"status,omitempty"`

	// Attribute variant.
	AttributeKey   string `json:"attributeKey,omitempty"`
	AttributeValue string `json:"attributeValue,omitempty"`

	// Problem is set when the record was malformed at parse time.
	Problem *Problem `json:"problem,omitempty"`
}

// Batch is the parsed contents of one feed file, immutable after construction.
type Batch struct {
	// ListID is the raw list identifier from the feed header, empty for
	// feed shapes that carry no header.
	ListID  string
	Records []Record
}

// Outcome is the recorded result of processing one record.
type Outcome struct {
	Record Record `json:"record"`
	Result Result `json:"result"`
	Reason string `json:"reason,omitempty"`
}
