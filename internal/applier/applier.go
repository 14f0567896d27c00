// Package applier is the implementation of the update applier component.
// Given a resolved feed record it issues the corresponding idempotent
// state-changing call against the catalog service and classifies the
// outcome. Nothing escapes record scope: every path ends in an Outcome.
package applier

import (
	"context"
	"log/slog"

	"github.com/partnerfeeds/feedsync/internal/catalog"
	"github.com/partnerfeeds/feedsync/internal/feed"
)

// Updater is the subset of the catalog client the applier issues updates through.
type Updater interface {
	SetInventoryLevel(ctx context.Context, inventoryItemID, locationID int64, available int) error
	GetOrderByName(ctx context.Context, name string) (*catalog.Order, error)
	ListFulfillmentOrders(ctx context.Context, orderID int64) ([]catalog.FulfillmentOrder, error)
	CreateFulfillment(ctx context.Context, params catalog.FulfillmentParams) error
	SetMetafield(ctx context.Context, ownerID int64, namespace, key, value string) error
}

// Resolver resolves feed-side SKUs against the per-batch catalog index.
type Resolver interface {
	ResolveSKU(sku string) (catalog.Item, bool)
}

// AttributeNamespace is the metafield namespace attribute updates are written to.
const AttributeNamespace = "custom"

// Applier applies resolved feed records to the catalog service.
type Applier struct {
	cat Updater
	idx Resolver

	notifyCustomer     bool
	deriveAvailability bool
}

type options struct {
	notifyCustomer     bool
	deriveAvailability bool
}

var defaultOptions = options{
	notifyCustomer: true,
}

// Options represents an optional function to override Applier default values.
type Options func(*options)

// WithNotifyCustomer controls whether fulfillment creation notifies the customer.
func WithNotifyCustomer(notify bool) Options {
	return func(o *options) {
		o.notifyCustomer = notify
	}
}

// WithDerivedAvailability also writes the availability attribute derived from
// each applied inventory allocation.
func WithDerivedAvailability(derive bool) Options {
	return func(o *options) {
		o.deriveAvailability = derive
	}
}

// New creates an applier issuing updates through cat, resolving SKUs through idx.
// idx may be nil for feed shapes that never resolve SKUs (order status feeds).
func New(cat Updater, idx Resolver, args ...Options) *Applier {
	opts := defaultOptions
	for _, opt := range args {
		opt(&opts)
	}

	return &Applier{
		cat:                cat,
		idx:                idx,
		notifyCustomer:     opts.notifyCustomer,
		deriveAvailability: opts.deriveAvailability,
	}
}

// Apply applies a single record and classifies the result.
// locationIDs are the already-resolved destinations for inventory records;
// record application within a batch is strictly sequential, so Apply holds
// no internal state.
func (a *Applier) Apply(ctx context.Context, rec feed.Record, locationIDs []int64) feed.Outcome {
	if rec.Problem != nil {
		return feed.Outcome{Record: rec, Result: rec.Problem.Result, Reason: rec.Problem.Reason}
	}

	switch rec.Kind {
	case feed.RecordInventory, feed.RecordPackage:
		return a.applyInventory(ctx, rec, locationIDs)
	case feed.RecordOrderStatus:
		return a.applyOrderStatus(ctx, rec)
	case feed.RecordAttribute:
		return a.applyAttribute(ctx, rec)
	default:
		return feed.Outcome{Record: rec, Result: feed.ResultFailed, Reason: "unknown-record-kind"}
	}
}

func (a *Applier) applyInventory(ctx context.Context, rec feed.Record, locationIDs []int64) feed.Outcome {
	item, ok := a.idx.ResolveSKU(rec.ProductID)
	if !ok {
		slog.Warn("No catalog product found for SKU", "sku", rec.ProductID)
		return feed.Outcome{Record: rec, Result: feed.ResultSkipped, Reason: "unknown-sku"}
	}

	for _, locID := range locationIDs {
		if err := a.cat.SetInventoryLevel(ctx, item.InventoryItemID, locID, rec.Allocation); err != nil {
			slog.Warn("Failed to set inventory level", "sku", rec.ProductID, "location", locID, "error", err)
			return feed.Outcome{Record: rec, Result: feed.ResultFailed, Reason: "apply-rejected"}
		}
		slog.Debug("Set inventory level", "sku", rec.ProductID, "location", locID, "available", rec.Allocation)
	}

	if a.deriveAvailability {
		label := feed.AvailabilityForQuantity(rec.Allocation)
		if err := a.cat.SetMetafield(ctx, item.VariantID, AttributeNamespace, feed.AvailabilityAttribute, label); err != nil {
			slog.Warn("Failed to set derived availability", "sku", rec.ProductID, "value", label, "error", err)
			return feed.Outcome{Record: rec, Result: feed.ResultFailed, Reason: "apply-rejected"}
		}
		slog.Debug("Set derived availability", "sku", rec.ProductID, "value", label)
	}

	return feed.Outcome{Record: rec, Result: feed.ResultApplied}
}

func (a *Applier) applyOrderStatus(ctx context.Context, rec feed.Record) feed.Outcome {
	if rec.Status != feed.StatusCompleted {
		return feed.Outcome{Record: rec, Result: feed.ResultSkipped, Reason: "not-completed"}
	}

	order, err := a.cat.GetOrderByName(ctx, rec.OrderNo)
	if err != nil {
		slog.Warn("Order lookup failed", "orderNo", rec.OrderNo, "error", err)
		return feed.Outcome{Record: rec, Result: feed.ResultFailed, Reason: "order-lookup-failed"}
	}
	if order == nil {
		slog.Warn("No downstream order found", "orderNo", rec.OrderNo)
		return feed.Outcome{Record: rec, Result: feed.ResultFailed, Reason: "order-not-found"}
	}

	fulfillmentOrders, err := a.cat.ListFulfillmentOrders(ctx, order.ID)
	if err != nil {
		slog.Warn("Fulfillment order lookup failed", "orderNo", rec.OrderNo, "error", err)
		return feed.Outcome{Record: rec, Result: feed.ResultFailed, Reason: "order-lookup-failed"}
	}
	if len(fulfillmentOrders) == 0 || len(fulfillmentOrders[0].LineItems) == 0 {
		slog.Warn("Order has no fulfillable line items", "orderNo", rec.OrderNo)
		return feed.Outcome{Record: rec, Result: feed.ResultFailed, Reason: "no-fulfillment-lines"}
	}

	params := catalog.FulfillmentParams{
		FulfillmentOrderID: fulfillmentOrders[0].ID,
		LineItems:          fulfillmentOrders[0].LineItems,
		NotifyCustomer:     a.notifyCustomer,
	}
	if err := a.cat.CreateFulfillment(ctx, params); err != nil {
		slog.Warn("Failed to create fulfillment", "orderNo", rec.OrderNo, "error", err)
		return feed.Outcome{Record: rec, Result: feed.ResultFailed, Reason: "apply-rejected"}
	}

	slog.Info("Order fulfilled", "orderNo", rec.OrderNo)
	return feed.Outcome{Record: rec, Result: feed.ResultApplied}
}

func (a *Applier) applyAttribute(ctx context.Context, rec feed.Record) feed.Outcome {
	item, ok := a.idx.ResolveSKU(rec.ProductID)
	if !ok {
		slog.Warn("No catalog variant found for SKU", "sku", rec.ProductID)
		return feed.Outcome{Record: rec, Result: feed.ResultSkipped, Reason: "unknown-sku"}
	}

	if err := a.cat.SetMetafield(ctx, item.VariantID, AttributeNamespace, rec.AttributeKey, rec.AttributeValue); err != nil {
		slog.Warn("Failed to set attribute", "sku", rec.ProductID, "key", rec.AttributeKey, "error", err)
		return feed.Outcome{Record: rec, Result: feed.ResultFailed, Reason: "apply-rejected"}
	}

	slog.Debug("Set attribute", "sku", rec.ProductID, "key", rec.AttributeKey, "value", rec.AttributeValue)
	return feed.Outcome{Record: rec, Result: feed.ResultApplied}
}
