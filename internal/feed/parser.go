package feed

import (
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

var (
	// ErrMalformed is returned when a feed document cannot be parsed at all.
	ErrMalformed = errors.New("malformed feed document")

	// ErrMissingHeader is returned when a feed document lacks its header list-id.
	ErrMissingHeader = errors.New("feed header has no list-id")
)

// Parse parses raw feed document bytes according to the given feed kind.
//
// Document-level problems (invalid XML, missing header) are returned as
// errors and abort the whole batch. Record-level problems are annotated on
// the affected record only.
func Parse(kind Kind, data []byte) (Batch, error) {
	switch kind {
	case KindInventory:
		return parseInventory(data)
	case KindOrderStatus:
		return parseOrderStatus(data)
	case KindAttribute:
		return parseAttribute(data)
	default:
		return Batch{}, fmt.Errorf("unknown feed kind %q", kind)
	}
}

type inventoryDoc struct {
	XMLName xml.Name `xml:"inventory"`
	List    struct {
		Header struct {
			ListID string `xml:"list-id,attr"`
		} `xml:"header"`
		Records struct {
			Records []inventoryRecord `xml:"record"`
		} `xml:"records"`
	} `xml:"inventory-list"`
}

type inventoryRecord struct {
	ProductID    string        `xml:"product-id,attr"`
	Allocation   string        `xml:"allocation"`
	PackageItems []packageItem `xml:"package-item"`
}

type packageItem struct {
	SKU string `xml:"sku,attr"`
	Qty string `xml:"qty,attr"`
}

func parseInventory(data []byte) (Batch, error) {
	var doc inventoryDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.List.Header.ListID == "" {
		return Batch{}, ErrMissingHeader
	}

	batch := Batch{ListID: doc.List.Header.ListID}
	for _, r := range doc.List.Records.Records {
		batch.Records = append(batch.Records, r.toRecord())
	}
	return batch, nil
}

// toRecord normalizes one raw inventory record, computing the package
// allocation as the minimum over its items when package items are present.
func (r inventoryRecord) toRecord() Record {
	if r.ProductID == "" {
		slog.Warn("Skipping inventory record with missing product-id")
		return Record{
			Kind:    RecordInventory,
			Problem: &Problem{Result: ResultSkipped, Reason: "missing-id"},
		}
	}

	if len(r.PackageItems) > 0 {
		rec := Record{Kind: RecordPackage, ProductID: r.ProductID}
		min := 0
		for i, item := range r.PackageItems {
			qty, err := parseQuantity(item.Qty)
			if err != nil {
				return Record{
					Kind:      RecordPackage,
					ProductID: r.ProductID,
					Problem:   &Problem{Result: ResultFailed, Reason: "invalid-quantity"},
				}
			}
			rec.Items = append(rec.Items, PackageItem{SKU: item.SKU, Qty: qty})
			if i == 0 || qty < min {
				min = qty
			}
		}
		// A package is available only to the extent every component is.
		rec.Allocation = min
		return rec
	}

	rec := Record{Kind: RecordInventory, ProductID: r.ProductID}
	qty, err := parseQuantity(r.Allocation)
	if err != nil {
		rec.Problem = &Problem{Result: ResultFailed, Reason: "invalid-quantity"}
		return rec
	}
	rec.Allocation = qty
	return rec
}

// parseQuantity parses a base-10, non-negative allocation value.
// Negative values are rejected, not clamped.
func parseQuantity(s string) (int, error) {
	qty, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %v", s, err)
	}
	if qty < 0 {
		return 0, fmt.Errorf("negative quantity %d", qty)
	}
	return qty, nil
}

type ordersDoc struct {
	XMLName xml.Name   `xml:"orders"`
	Orders  []orderDoc `xml:"order"`
}

type orderDoc struct {
	OrderNo string `xml:"order-no,attr"`
	Status  struct {
		OrderStatus string `xml:"order-status"`
	} `xml:"status"`
}

func parseOrderStatus(data []byte) (Batch, error) {
	var doc ordersDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var batch Batch
	for _, o := range doc.Orders {
		if o.OrderNo == "" {
			slog.Warn("Skipping order record with missing order-no")
			batch.Records = append(batch.Records, Record{
				Kind:    RecordOrderStatus,
				Problem: &Problem{Result: ResultSkipped, Reason: "missing-id"},
			})
			continue
		}
		batch.Records = append(batch.Records, Record{
			Kind:    RecordOrderStatus,
			OrderNo: o.OrderNo,
			Status:  strings.TrimSpace(o.Status.OrderStatus),
		})
	}
	return batch, nil
}

type catalogDoc struct {
	XMLName  xml.Name     `xml:"catalog"`
	Products []productDoc `xml:"product"`
}

type productDoc struct {
	ProductID  string       `xml:"product-id,attr"`
	Attributes []customAttr `xml:"custom-attributes>custom-attribute"`
}

type customAttr struct {
	ID    string `xml:"attribute-id,attr"`
	Value string `xml:",chardata"`
}

func parseAttribute(data []byte) (Batch, error) {
	var doc catalogDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return Batch{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var batch Batch
	for _, p := range doc.Products {
		if p.ProductID == "" {
			slog.Warn("Skipping product record with missing product-id")
			batch.Records = append(batch.Records, Record{
				Kind:    RecordAttribute,
				Problem: &Problem{Result: ResultSkipped, Reason: "missing-id"},
			})
			continue
		}

		// A product without an explicit value is assumed freely sellable.
		value := AvailabilityAvailable
		for _, attr := range p.Attributes {
			if attr.ID != AvailabilityAttribute {
				continue
			}
			if v := strings.TrimSpace(attr.Value); v != "" {
				value = v
			}
			break
		}

		batch.Records = append(batch.Records, Record{
			Kind:           RecordAttribute,
			ProductID:      p.ProductID,
			AttributeKey:   AvailabilityAttribute,
			AttributeValue: value,
		})
	}
	return batch, nil
}
