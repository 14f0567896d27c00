package catalog

import (
	"context"
	"fmt"
)

// Item is the catalog-side handle pair a SKU resolves to.
type Item struct {
	VariantID       int64
	InventoryItemID int64
}

// Lister is the subset of the catalog client the index is built from.
type Lister interface {
	ListProducts(ctx context.Context, page int) ([]Product, error)
	ListLocations(ctx context.Context) ([]Location, error)
}

// Index maps feed-side identifiers to catalog handles.
//
// It is built once per batch by paginating the full product listing, then
// read-only during record processing, which amortizes the O(catalog size)
// listing across all records instead of re-scanning per record. The index
// goes stale if the catalog changes mid-batch; that staleness is accepted.
type Index struct {
	skus      map[string]Item
	locations map[string]int64
}

// maxProductPages bounds the product pagination loop against a catalog that
// never returns an empty page.
const maxProductPages = 10000

// BuildIndex builds a new index from a full product and location listing.
func BuildIndex(ctx context.Context, l Lister) (*Index, error) {
	ix := &Index{
		skus:      make(map[string]Item),
		locations: make(map[string]int64),
	}

	for page := 1; page <= maxProductPages; page++ {
		products, err := l.ListProducts(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("failed to list products page %d: %w", page, err)
		}
		if len(products) == 0 {
			break
		}
		for _, p := range products {
			for _, v := range p.Variants {
				if v.SKU == "" {
					continue
				}
				// First occurrence wins on duplicate SKUs.
				if _, ok := ix.skus[v.SKU]; ok {
					continue
				}
				ix.skus[v.SKU] = Item{VariantID: v.ID, InventoryItemID: v.InventoryItemID}
			}
		}
	}

	locations, err := l.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	for _, loc := range locations {
		ix.locations[loc.Name] = loc.ID
	}

	return ix, nil
}

// ResolveSKU returns the catalog handles for a SKU.
func (ix *Index) ResolveSKU(sku string) (Item, bool) {
	item, ok := ix.skus[sku]
	return item, ok
}

// ResolveLocation returns the location ID for a canonical location name.
func (ix *Index) ResolveLocation(name string) (int64, bool) {
	id, ok := ix.locations[name]
	return id, ok
}
