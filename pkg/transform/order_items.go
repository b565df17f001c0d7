package transform

import (
	"math"

	"github.com/ultimatecoffee/shopsync/pkg/models"
)

// OrderFields is the projection requested from orders.json
var OrderFields = []string{"id", "order_number", "line_items"}

// VendorTable maps a variant ID to the vendor used for line items that
// carry no vendor of their own
type VendorTable map[string]string

// Lookup returns the vendor for variant, or nil when unmapped
func (vt VendorTable) Lookup(variant models.Value) interface{} {
	id, ok := variant.Text()
	if !ok || id == "" {
		return nil
	}
	if name, ok := vt[id]; ok && name != "" {
		return name
	}
	return nil
}

// OrderItemsTransformer produces one row per line item
type OrderItemsTransformer struct {
	vendors VendorTable
}

// NewOrderItemsTransformer creates an order items transformer using vendors
// as the variant fallback table
func NewOrderItemsTransformer(vendors VendorTable) *OrderItemsTransformer {
	if vendors == nil {
		vendors = VendorTable{}
	}
	return &OrderItemsTransformer{vendors: vendors}
}

// Name implements core.Transformer
func (t *OrderItemsTransformer) Name() string { return "orders" }

// Header implements core.Transformer
func (t *OrderItemsTransformer) Header() Row {
	return Row{"Order ID", "Order Number", "Quantity", "Vendor", "Title", "Price", "Discount"}
}

// Transform implements core.Transformer
func (t *OrderItemsTransformer) Transform(records []models.Record) ([]Row, int) {
	var rows []Row
	skipped := 0
	for _, rec := range records {
		items := t.Rows(rec)
		if len(items) == 0 {
			skipped++
			continue
		}
		rows = append(rows, items...)
	}
	return rows, skipped
}

// Rows maps one order to a row per line item, in line item order. Orders
// with absent or empty line_items yield nil.
func (t *OrderItemsTransformer) Rows(o models.Record) []Row {
	items, ok := o.Lookup("line_items").Array()
	if !ok || len(items) == 0 {
		return nil
	}

	orderID := o.Lookup("id").Cell()
	orderNumber := o.Lookup("order_number").Cell()

	rows := make([]Row, 0, len(items))
	for _, v := range items {
		item, _ := v.Object()
		rows = append(rows, Row{
			orderID,
			orderNumber,
			item.Lookup("quantity").Cell(),
			t.vendor(item),
			item.Lookup("title").Cell(),
			item.Lookup("price").Cell(),
			Discount(item),
		})
	}
	return rows
}

func (t *OrderItemsTransformer) vendor(item models.Record) interface{} {
	if v, ok := item.Lookup("vendor").Text(); ok && v != "" {
		return v
	}
	return t.vendors.Lookup(item.Lookup("variant_id"))
}

// Discount sums the amounts of a line item's discount allocations in cents.
// Missing or non-numeric amounts count as zero; amounts may be numeric strings.
func Discount(item models.Record) float64 {
	allocations, ok := item.Lookup("discount_allocations").Array()
	if !ok {
		return 0
	}
	var cents int64
	for _, a := range allocations {
		alloc, ok := a.Object()
		if !ok {
			continue
		}
		if amount, ok := alloc.Lookup("amount").Float(); ok {
			cents += int64(math.Round(amount * 100))
		}
	}
	return float64(cents) / 100
}
