package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/partnerfeeds/feedsync/internal/constants"
)

// ErrRequestFailed is returned when the catalog service rejects a request,
// either due to a network error or a non-success status code.
var ErrRequestFailed = errors.New("catalog request failed")

// Client talks to the catalog service over its REST API.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	limiter  *rate.Limiter
	pageSize int
}

type options struct {
	timeout  time.Duration
	pageSize int
	rps      rate.Limit
	burst    int
}

var defaultOptions = options{
	timeout:  constants.DefaultCatalogTimeout,
	pageSize: constants.DefaultCatalogPageSize,
	rps:      2,
	burst:    4,
}

// Options represents an optional function to override Client default values.
type Options func(*options)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Options {
	return func(o *options) {
		o.timeout = d
	}
}

// WithPageSize overrides the product listing page size.
func WithPageSize(n int) Options {
	return func(o *options) {
		o.pageSize = n
	}
}

// WithRateLimit overrides the request rate limit and burst.
func WithRateLimit(rps float64, burst int) Options {
	return func(o *options) {
		o.rps = rate.Limit(rps)
		o.burst = burst
	}
}

// New creates a catalog client for the service at baseURL, authenticating
// with the given access token.
func New(baseURL, token string, args ...Options) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("catalog base URL must be set")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid catalog base URL %q: %v", baseURL, err)
	}

	opts := defaultOptions
	for _, opt := range args {
		opt(&opts)
	}

	return &Client{
		baseURL:  baseURL,
		token:    token,
		http:     &http.Client{Timeout: opts.timeout},
		limiter:  rate.NewLimiter(opts.rps, opts.burst),
		pageSize: opts.pageSize,
	}, nil
}

// PageSize returns the page size used when listing products.
func (c *Client) PageSize() int {
	return c.pageSize
}

// ListProducts returns one page of the full product listing.
// Pages are 1-based; a page beyond the end of the listing is empty.
func (c *Client) ListProducts(ctx context.Context, page int) ([]Product, error) {
	var out struct {
		Products []Product `json:"products"`
	}
	query := url.Values{
		"limit": {strconv.Itoa(c.pageSize)},
		"page":  {strconv.Itoa(page)},
	}
	if err := c.do(ctx, http.MethodGet, "products.json", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// ListLocations returns all stock locations.
func (c *Client) ListLocations(ctx context.Context) ([]Location, error) {
	var out struct {
		Locations []Location `json:"locations"`
	}
	if err := c.do(ctx, http.MethodGet, "locations.json", nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Locations, nil
}

// SetInventoryLevel sets the absolute available quantity of an inventory item
// at a location. Re-applying the same quantity is a no-op in effect.
func (c *Client) SetInventoryLevel(ctx context.Context, inventoryItemID, locationID int64, available int) error {
	body := map[string]any{
		"inventory_item_id": inventoryItemID,
		"location_id":       locationID,
		"available":         available,
	}
	return c.do(ctx, http.MethodPost, "inventory_levels/set.json", nil, body, nil)
}

// GetOrderByName looks up an order by its external order number.
// It returns nil without an error when no order matches.
func (c *Client) GetOrderByName(ctx context.Context, name string) (*Order, error) {
	var out struct {
		Orders []Order `json:"orders"`
	}
	query := url.Values{
		"name":   {"#" + name},
		"status": {"any"},
	}
	if err := c.do(ctx, http.MethodGet, "orders.json", query, nil, &out); err != nil {
		return nil, err
	}
	if len(out.Orders) == 0 {
		return nil, nil
	}
	return &out.Orders[0], nil
}

// ListFulfillmentOrders returns the fulfillment orders of an order.
func (c *Client) ListFulfillmentOrders(ctx context.Context, orderID int64) ([]FulfillmentOrder, error) {
	var out struct {
		FulfillmentOrders []FulfillmentOrder `json:"fulfillment_orders"`
	}
	p := path.Join("orders", strconv.FormatInt(orderID, 10), "fulfillment_orders.json")
	if err := c.do(ctx, http.MethodGet, p, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.FulfillmentOrders, nil
}

// CreateFulfillment confirms shipment of the given fulfillment order lines.
func (c *Client) CreateFulfillment(ctx context.Context, params FulfillmentParams) error {
	lines := make([]map[string]any, 0, len(params.LineItems))
	for _, li := range params.LineItems {
		lines = append(lines, map[string]any{
			"id":       li.ID,
			"quantity": li.Quantity,
		})
	}
	body := map[string]any{
		"fulfillment": map[string]any{
			"notify_customer": params.NotifyCustomer,
			"line_items_by_fulfillment_order": []map[string]any{
				{
					"fulfillment_order_id":          params.FulfillmentOrderID,
					"fulfillment_order_line_items": lines,
				},
			},
		},
	}
	return c.do(ctx, http.MethodPost, "fulfillments.json", nil, body, nil)
}

// SetMetafield writes an attribute value in the given namespace on a variant.
func (c *Client) SetMetafield(ctx context.Context, ownerID int64, namespace, key, value string) error {
	body := map[string]any{
		"metafield": map[string]any{
			"namespace":      namespace,
			"key":            key,
			"value":          value,
			"type":           "single_line_text_field",
			"owner_id":       ownerID,
			"owner_resource": "variant",
		},
	}
	return c.do(ctx, http.MethodPost, "metafields.json", nil, body, nil)
}

// do performs one rate-limited request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for catalog rate limiter: %w", err)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("failed to parse catalog base URL: %v", err)
	}
	u.Path = path.Join(u.Path, endpoint)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Join(ErrRequestFailed, fmt.Errorf("failed to send HTTP request: %v", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Join(ErrRequestFailed, fmt.Errorf("unexpected status code %d on %s %s", resp.StatusCode, method, endpoint))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %v", err)
	}
	return nil
}
