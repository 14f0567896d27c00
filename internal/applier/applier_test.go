package applier_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/partnerfeeds/feedsync/internal/applier"
	"github.com/partnerfeeds/feedsync/internal/catalog"
	"github.com/partnerfeeds/feedsync/internal/feed"
)

type inventoryCall struct {
	InventoryItemID int64
	LocationID      int64
	Available       int
}

// fakeCatalog is a scriptable Updater recording every state-changing call.
type fakeCatalog struct {
	order             *catalog.Order
	fulfillmentOrders []catalog.FulfillmentOrder

	inventoryErr   error
	orderErr       error
	fulfillmentErr error
	createErr      error
	metafieldErr   error

	inventoryCalls []inventoryCall
	fulfillments   []catalog.FulfillmentParams
	metafields     []string
}

func (f *fakeCatalog) SetInventoryLevel(_ context.Context, inventoryItemID, locationID int64, available int) error {
	if f.inventoryErr != nil {
		return f.inventoryErr
	}
	f.inventoryCalls = append(f.inventoryCalls, inventoryCall{inventoryItemID, locationID, available})
	return nil
}

func (f *fakeCatalog) GetOrderByName(context.Context, string) (*catalog.Order, error) {
	return f.order, f.orderErr
}

func (f *fakeCatalog) ListFulfillmentOrders(context.Context, int64) ([]catalog.FulfillmentOrder, error) {
	return f.fulfillmentOrders, f.fulfillmentErr
}

func (f *fakeCatalog) CreateFulfillment(_ context.Context, params catalog.FulfillmentParams) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.fulfillments = append(f.fulfillments, params)
	return nil
}

func (f *fakeCatalog) SetMetafield(_ context.Context, ownerID int64, namespace, key, value string) error {
	if f.metafieldErr != nil {
		return f.metafieldErr
	}
	f.metafields = append(f.metafields, namespace+"/"+key+"="+value)
	return nil
}

// fakeResolver resolves SKUs from a fixed map.
type fakeResolver map[string]catalog.Item

func (f fakeResolver) ResolveSKU(sku string) (catalog.Item, bool) {
	item, ok := f[sku]
	return item, ok
}

func TestApplyInventory(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		record             feed.Record
		skus               fakeResolver
		locationIDs        []int64
		inventoryErr       error
		metafieldErr       error
		deriveAvailability bool

		wantResult     feed.Result
		wantReason     string
		wantCalls      []inventoryCall
		wantMetafields []string
	}{
		"Applies to every location": {
			record:      feed.Record{Kind: feed.RecordInventory, ProductID: "A1", Allocation: 10},
			skus:        fakeResolver{"A1": {VariantID: 1, InventoryItemID: 11}},
			locationIDs: []int64{100, 200},
			wantResult:  feed.ResultApplied,
			wantCalls: []inventoryCall{
				{InventoryItemID: 11, LocationID: 100, Available: 10},
				{InventoryItemID: 11, LocationID: 200, Available: 10},
			},
		},
		"Package allocation applies like plain inventory": {
			record:      feed.Record{Kind: feed.RecordPackage, ProductID: "P1", Allocation: 2},
			skus:        fakeResolver{"P1": {VariantID: 3, InventoryItemID: 33}},
			locationIDs: []int64{100},
			wantResult:  feed.ResultApplied,
			wantCalls: []inventoryCall{
				{InventoryItemID: 33, LocationID: 100, Available: 2},
			},
		},
		"Unknown SKU is skipped": {
			record:      feed.Record{Kind: feed.RecordInventory, ProductID: "ZZ", Allocation: 10},
			skus:        fakeResolver{},
			locationIDs: []int64{100},
			wantResult:  feed.ResultSkipped,
			wantReason:  "unknown-sku",
		},
		"Rejected update fails the record": {
			record:       feed.Record{Kind: feed.RecordInventory, ProductID: "A1", Allocation: 10},
			skus:         fakeResolver{"A1": {VariantID: 1, InventoryItemID: 11}},
			locationIDs:  []int64{100},
			inventoryErr: errors.New("nope"),
			wantResult:   feed.ResultFailed,
			wantReason:   "apply-rejected",
		},
		"Derived availability follows the allocation": {
			record:             feed.Record{Kind: feed.RecordInventory, ProductID: "A1", Allocation: 5},
			skus:               fakeResolver{"A1": {VariantID: 1, InventoryItemID: 11}},
			locationIDs:        []int64{100},
			deriveAvailability: true,
			wantResult:         feed.ResultApplied,
			wantCalls: []inventoryCall{
				{InventoryItemID: 11, LocationID: 100, Available: 5},
			},
			wantMetafields: []string{"custom/availability=Limited Stock"},
		},
		"Derived availability for zero stock": {
			record:             feed.Record{Kind: feed.RecordInventory, ProductID: "A1", Allocation: 0},
			skus:               fakeResolver{"A1": {VariantID: 1, InventoryItemID: 11}},
			locationIDs:        []int64{100},
			deriveAvailability: true,
			wantResult:         feed.ResultApplied,
			wantCalls: []inventoryCall{
				{InventoryItemID: 11, LocationID: 100, Available: 0},
			},
			wantMetafields: []string{"custom/availability=On Order"},
		},
		"Rejected derived availability fails the record": {
			record:             feed.Record{Kind: feed.RecordInventory, ProductID: "A1", Allocation: 20},
			skus:               fakeResolver{"A1": {VariantID: 1, InventoryItemID: 11}},
			locationIDs:        []int64{100},
			deriveAvailability: true,
			metafieldErr:       errors.New("nope"),
			wantResult:         feed.ResultFailed,
			wantReason:         "apply-rejected",
			wantCalls: []inventoryCall{
				{InventoryItemID: 11, LocationID: 100, Available: 20},
			},
		},
		"No availability written without the option": {
			record:      feed.Record{Kind: feed.RecordInventory, ProductID: "A1", Allocation: 0},
			skus:        fakeResolver{"A1": {VariantID: 1, InventoryItemID: 11}},
			locationIDs: []int64{100},
			wantResult:  feed.ResultApplied,
			wantCalls: []inventoryCall{
				{InventoryItemID: 11, LocationID: 100, Available: 0},
			},
		},
		"Parse-time problem short-circuits": {
			record: feed.Record{Kind: feed.RecordInventory, ProductID: "A1",
				Problem: &feed.Problem{Result: feed.ResultFailed, Reason: "invalid-quantity"}},
			skus:        fakeResolver{"A1": {VariantID: 1, InventoryItemID: 11}},
			locationIDs: []int64{100},
			wantResult:  feed.ResultFailed,
			wantReason:  "invalid-quantity",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cat := &fakeCatalog{inventoryErr: tc.inventoryErr, metafieldErr: tc.metafieldErr}
			a := applier.New(cat, tc.skus, applier.WithDerivedAvailability(tc.deriveAvailability))

			out := a.Apply(context.Background(), tc.record, tc.locationIDs)

			require.Equal(t, tc.wantResult, out.Result, "Apply should classify the outcome")
			require.Equal(t, tc.wantReason, out.Reason, "Apply should report the expected reason")
			require.Equal(t, tc.wantCalls, cat.inventoryCalls, "Apply should issue the expected inventory updates")
			require.Equal(t, tc.wantMetafields, cat.metafields, "Apply should issue the expected derived availability writes")
		})
	}
}

func TestApplyOrderStatus(t *testing.T) {
	t.Parallel()

	lines := []catalog.FulfillmentLine{{ID: 70, Quantity: 2}}

	tests := map[string]struct {
		status            string
		order             *catalog.Order
		fulfillmentOrders []catalog.FulfillmentOrder
		orderErr          error
		fulfillmentErr    error
		createErr         error
		notifyCustomer    *bool

		wantResult       feed.Result
		wantReason       string
		wantFulfillments int
	}{
		"Completed order is fulfilled": {
			status:            "COMPLETED",
			order:             &catalog.Order{ID: 42},
			fulfillmentOrders: []catalog.FulfillmentOrder{{ID: 7, LineItems: lines}},
			wantResult:        feed.ResultApplied,
			wantFulfillments:  1,
		},
		"Non-completed status is skipped": {
			status:     "PENDING",
			wantResult: feed.ResultSkipped,
			wantReason: "not-completed",
		},
		"Order lookup error": {
			status:     "COMPLETED",
			orderErr:   errors.New("nope"),
			wantResult: feed.ResultFailed,
			wantReason: "order-lookup-failed",
		},
		"Order not found": {
			status:     "COMPLETED",
			order:      nil,
			wantResult: feed.ResultFailed,
			wantReason: "order-not-found",
		},
		"Fulfillment order lookup error": {
			status:         "COMPLETED",
			order:          &catalog.Order{ID: 42},
			fulfillmentErr: errors.New("nope"),
			wantResult:     feed.ResultFailed,
			wantReason:     "order-lookup-failed",
		},
		"No fulfillment orders": {
			status:     "COMPLETED",
			order:      &catalog.Order{ID: 42},
			wantResult: feed.ResultFailed,
			wantReason: "no-fulfillment-lines",
		},
		"Fulfillment order without line items": {
			status:            "COMPLETED",
			order:             &catalog.Order{ID: 42},
			fulfillmentOrders: []catalog.FulfillmentOrder{{ID: 7}},
			wantResult:        feed.ResultFailed,
			wantReason:        "no-fulfillment-lines",
		},
		"Fulfillment creation rejected": {
			status:            "COMPLETED",
			order:             &catalog.Order{ID: 42},
			fulfillmentOrders: []catalog.FulfillmentOrder{{ID: 7, LineItems: lines}},
			createErr:         errors.New("nope"),
			wantResult:        feed.ResultFailed,
			wantReason:        "apply-rejected",
		},
		"Customer notification can be disabled": {
			status:            "COMPLETED",
			order:             &catalog.Order{ID: 42},
			fulfillmentOrders: []catalog.FulfillmentOrder{{ID: 7, LineItems: lines}},
			notifyCustomer:    func() *bool { b := false; return &b }(),
			wantResult:        feed.ResultApplied,
			wantFulfillments:  1,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cat := &fakeCatalog{
				order:             tc.order,
				fulfillmentOrders: tc.fulfillmentOrders,
				orderErr:          tc.orderErr,
				fulfillmentErr:    tc.fulfillmentErr,
				createErr:         tc.createErr,
			}
			var opts []applier.Options
			if tc.notifyCustomer != nil {
				opts = append(opts, applier.WithNotifyCustomer(*tc.notifyCustomer))
			}
			a := applier.New(cat, nil, opts...)

			rec := feed.Record{Kind: feed.RecordOrderStatus, OrderNo: "1001", Status: tc.status}
			out := a.Apply(context.Background(), rec, nil)

			require.Equal(t, tc.wantResult, out.Result, "Apply should classify the outcome")
			require.Equal(t, tc.wantReason, out.Reason, "Apply should report the expected reason")
			require.Len(t, cat.fulfillments, tc.wantFulfillments, "Apply should create the expected fulfillments")

			if tc.wantFulfillments > 0 {
				got := cat.fulfillments[0]
				require.Equal(t, int64(7), got.FulfillmentOrderID, "Fulfillment should target the first fulfillment order")
				require.Equal(t, lines, got.LineItems, "Fulfillment should carry all line items")
				wantNotify := tc.notifyCustomer == nil || *tc.notifyCustomer
				require.Equal(t, wantNotify, got.NotifyCustomer, "Fulfillment should honor the notify option")
			}
		})
	}
}

func TestApplyAttribute(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		skus         fakeResolver
		metafieldErr error

		wantResult     feed.Result
		wantReason     string
		wantMetafields []string
	}{
		"Writes the availability metafield": {
			skus:           fakeResolver{"X1": {VariantID: 9}},
			wantResult:     feed.ResultApplied,
			wantMetafields: []string{"custom/availability=Limited Stock"},
		},
		"Unknown SKU is skipped": {
			skus:       fakeResolver{},
			wantResult: feed.ResultSkipped,
			wantReason: "unknown-sku",
		},
		"Rejected update fails the record": {
			skus:         fakeResolver{"X1": {VariantID: 9}},
			metafieldErr: errors.New("nope"),
			wantResult:   feed.ResultFailed,
			wantReason:   "apply-rejected",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cat := &fakeCatalog{metafieldErr: tc.metafieldErr}
			a := applier.New(cat, tc.skus)

			rec := feed.Record{Kind: feed.RecordAttribute, ProductID: "X1",
				AttributeKey: "availability", AttributeValue: "Limited Stock"}
			out := a.Apply(context.Background(), rec, nil)

			require.Equal(t, tc.wantResult, out.Result, "Apply should classify the outcome")
			require.Equal(t, tc.wantReason, out.Reason, "Apply should report the expected reason")
			require.Equal(t, tc.wantMetafields, cat.metafields, "Apply should issue the expected metafield writes")
		})
	}
}

func TestApplyUnknownRecordKind(t *testing.T) {
	t.Parallel()

	a := applier.New(&fakeCatalog{}, fakeResolver{})
	out := a.Apply(context.Background(), feed.Record{Kind: feed.RecordKind("bogus")}, nil)
	require.Equal(t, feed.ResultFailed, out.Result, "Unknown record kinds should fail")
	require.Equal(t, "unknown-record-kind", out.Reason, "Unknown record kinds should carry a reason")
}
