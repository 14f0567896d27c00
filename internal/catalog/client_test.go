package catalog_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/partnerfeeds/feedsync/internal/catalog"
)

// recordingServer captures the last request made to a catalog stub.
type recordingServer struct {
	*httptest.Server

	method string
	path   string
	query  string
	auth   string
	body   []byte
}

func newRecordingServer(t *testing.T, status int, response string) *recordingServer {
	t.Helper()

	rs := &recordingServer{}
	rs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rs.method = r.Method
		rs.path = r.URL.Path
		rs.query = r.URL.RawQuery
		rs.auth = r.Header.Get("Authorization")
		var err error
		rs.body, err = io.ReadAll(r.Body)
		require.NoError(t, err, "Setup: could not read request body")

		w.WriteHeader(status)
		_, err = w.Write([]byte(response))
		require.NoError(t, err, "Setup: could not write response")
	}))
	t.Cleanup(rs.Close)
	return rs
}

func newClient(t *testing.T, baseURL string, args ...catalog.Options) *catalog.Client {
	t.Helper()

	args = append([]catalog.Options{catalog.WithRateLimit(1000, 1000)}, args...)
	c, err := catalog.New(baseURL, "test-token", args...)
	require.NoError(t, err, "Setup: could not create catalog client")
	return c
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := catalog.New("", "token")
	require.Error(t, err, "New should reject an empty base URL")

	c, err := catalog.New("https://example.test/api", "token", catalog.WithPageSize(50))
	require.NoError(t, err, "New should accept a valid base URL")
	require.Equal(t, 50, c.PageSize(), "WithPageSize should override the page size")
}

func TestListProducts(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusOK, `{"products":[
		{"id":1,"variants":[{"id":10,"sku":"A1","inventory_item_id":100}]}
	]}`)
	c := newClient(t, srv.URL, catalog.WithPageSize(2))

	products, err := c.ListProducts(context.Background(), 3)
	require.NoError(t, err, "ListProducts should not error")

	require.Equal(t, http.MethodGet, srv.method, "ListProducts should issue a GET")
	require.Equal(t, "/products.json", srv.path, "ListProducts should hit the products endpoint")
	require.Equal(t, "limit=2&page=3", srv.query, "ListProducts should paginate with the configured page size")
	require.Equal(t, "Bearer test-token", srv.auth, "Requests should carry the access token")

	require.Len(t, products, 1, "ListProducts should decode the product list")
	require.Equal(t, "A1", products[0].Variants[0].SKU, "ListProducts should decode variants")
}

func TestListLocations(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusOK, `{"locations":[{"id":5,"name":"Store 01"}]}`)
	c := newClient(t, srv.URL)

	locations, err := c.ListLocations(context.Background())
	require.NoError(t, err, "ListLocations should not error")

	require.Equal(t, "/locations.json", srv.path, "ListLocations should hit the locations endpoint")
	require.Equal(t, []catalog.Location{{ID: 5, Name: "Store 01"}}, locations, "ListLocations should decode the location list")
}

func TestSetInventoryLevel(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusOK, `{}`)
	c := newClient(t, srv.URL)

	err := c.SetInventoryLevel(context.Background(), 100, 5, 12)
	require.NoError(t, err, "SetInventoryLevel should not error")

	require.Equal(t, http.MethodPost, srv.method, "SetInventoryLevel should issue a POST")
	require.Equal(t, "/inventory_levels/set.json", srv.path, "SetInventoryLevel should hit the inventory endpoint")

	var body map[string]any
	require.NoError(t, json.Unmarshal(srv.body, &body), "Request body should be valid JSON")
	require.Equal(t, map[string]any{
		"inventory_item_id": float64(100),
		"location_id":       float64(5),
		"available":         float64(12),
	}, body, "SetInventoryLevel should send the absolute quantity")
}

func TestGetOrderByName(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		response string

		wantOrderID int64
		wantNil     bool
	}{
		"Order found":    {response: `{"orders":[{"id":42,"name":"#1001"}]}`, wantOrderID: 42},
		"No order found": {response: `{"orders":[]}`, wantNil: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := newRecordingServer(t, http.StatusOK, tc.response)
			c := newClient(t, srv.URL)

			order, err := c.GetOrderByName(context.Background(), "1001")
			require.NoError(t, err, "GetOrderByName should not error")
			require.Equal(t, "/orders.json", srv.path, "GetOrderByName should hit the orders endpoint")
			require.Equal(t, "name=%231001&status=any", srv.query, "GetOrderByName should query by prefixed order number")

			if tc.wantNil {
				require.Nil(t, order, "GetOrderByName should return nil when no order matches")
				return
			}
			require.NotNil(t, order, "GetOrderByName should return the matching order")
			require.Equal(t, tc.wantOrderID, order.ID, "GetOrderByName should decode the order")
		})
	}
}

func TestListFulfillmentOrders(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusOK, `{"fulfillment_orders":[
		{"id":7,"line_items":[{"id":70,"quantity":2}]}
	]}`)
	c := newClient(t, srv.URL)

	fos, err := c.ListFulfillmentOrders(context.Background(), 42)
	require.NoError(t, err, "ListFulfillmentOrders should not error")

	require.Equal(t, "/orders/42/fulfillment_orders.json", srv.path, "ListFulfillmentOrders should hit the per-order endpoint")
	require.Equal(t, []catalog.FulfillmentOrder{
		{ID: 7, LineItems: []catalog.FulfillmentLine{{ID: 70, Quantity: 2}}},
	}, fos, "ListFulfillmentOrders should decode the fulfillment orders")
}

func TestCreateFulfillment(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusCreated, `{}`)
	c := newClient(t, srv.URL)

	err := c.CreateFulfillment(context.Background(), catalog.FulfillmentParams{
		FulfillmentOrderID: 7,
		LineItems:          []catalog.FulfillmentLine{{ID: 70, Quantity: 2}},
		NotifyCustomer:     true,
	})
	require.NoError(t, err, "CreateFulfillment should not error")

	require.Equal(t, "/fulfillments.json", srv.path, "CreateFulfillment should hit the fulfillments endpoint")

	var body struct {
		Fulfillment struct {
			NotifyCustomer bool `json:"notify_customer"`
			ByOrder        []struct {
				FulfillmentOrderID int64 `json:"fulfillment_order_id"`
				LineItems          []struct {
					ID       int64 `json:"id"`
					Quantity int   `json:"quantity"`
				} `json:"fulfillment_order_line_items"`
			} `json:"line_items_by_fulfillment_order"`
		} `json:"fulfillment"`
	}
	require.NoError(t, json.Unmarshal(srv.body, &body), "Request body should be valid JSON")
	require.True(t, body.Fulfillment.NotifyCustomer, "CreateFulfillment should carry the notify flag")
	require.Len(t, body.Fulfillment.ByOrder, 1, "CreateFulfillment should target one fulfillment order")
	require.Equal(t, int64(7), body.Fulfillment.ByOrder[0].FulfillmentOrderID, "CreateFulfillment should target the given fulfillment order")
	require.Equal(t, int64(70), body.Fulfillment.ByOrder[0].LineItems[0].ID, "CreateFulfillment should carry the line items")
}

func TestSetMetafield(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusOK, `{}`)
	c := newClient(t, srv.URL)

	err := c.SetMetafield(context.Background(), 10, "custom", "availability", "Limited Stock")
	require.NoError(t, err, "SetMetafield should not error")

	require.Equal(t, "/metafields.json", srv.path, "SetMetafield should hit the metafields endpoint")

	var body map[string]map[string]any
	require.NoError(t, json.Unmarshal(srv.body, &body), "Request body should be valid JSON")
	require.Equal(t, map[string]any{
		"namespace":      "custom",
		"key":            "availability",
		"value":          "Limited Stock",
		"type":           "single_line_text_field",
		"owner_id":       float64(10),
		"owner_resource": "variant",
	}, body["metafield"], "SetMetafield should write a variant metafield")
}

func TestRequestFailures(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status int
	}{
		"Client error": {status: http.StatusUnprocessableEntity},
		"Server error": {status: http.StatusInternalServerError},
		"Redirection":  {status: http.StatusMultipleChoices},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv := newRecordingServer(t, tc.status, `{"errors":"nope"}`)
			c := newClient(t, srv.URL)

			_, err := c.ListLocations(context.Background())
			require.ErrorIs(t, err, catalog.ErrRequestFailed, "Non-success responses should map to ErrRequestFailed")
		})
	}
}

func TestRequestUnreachableServer(t *testing.T) {
	t.Parallel()

	srv := newRecordingServer(t, http.StatusOK, `{}`)
	srv.Close()
	c := newClient(t, srv.URL)

	_, err := c.ListLocations(context.Background())
	require.ErrorIs(t, err, catalog.ErrRequestFailed, "Network errors should map to ErrRequestFailed")
}
