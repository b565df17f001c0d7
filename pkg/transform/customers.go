package transform

import (
	"strings"

	"github.com/ultimatecoffee/shopsync/pkg/models"
)

// CustomerFields is the projection requested from customers.json
var CustomerFields = []string{
	"id", "created_at", "updated_at", "first_name", "last_name",
	"total_spent", "orders_count", "last_order_name", "addresses",
}

// CustomerTransformer produces one row per customer that has placed at
// least one order
type CustomerTransformer struct{}

// NewCustomerTransformer creates a customer transformer
func NewCustomerTransformer() *CustomerTransformer {
	return &CustomerTransformer{}
}

// Name implements core.Transformer
func (t *CustomerTransformer) Name() string { return "customers" }

// Header implements core.Transformer
func (t *CustomerTransformer) Header() Row {
	return Row{"ID", "First Initial", "Last Name", "Created", "Updated",
		"Total Spent", "Orders", "Last Order", "Zip Codes"}
}

// Transform implements core.Transformer
func (t *CustomerTransformer) Transform(records []models.Record) ([]Row, int) {
	rows := make([]Row, 0, len(records))
	skipped := 0
	for _, rec := range records {
		row, ok := t.Row(rec)
		if !ok {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped
}

// Row maps one customer. ok is false when orders_count is absent or not
// strictly positive.
func (t *CustomerTransformer) Row(c models.Record) (Row, bool) {
	count, ok := c.Lookup("orders_count").Float()
	if !ok || count <= 0 {
		return nil, false
	}

	return Row{
		c.Lookup("id").Cell(),
		firstRune(c.Lookup("first_name")),
		c.Lookup("last_name").Cell(),
		parseTimestamp(c.Lookup("created_at")),
		parseTimestamp(c.Lookup("updated_at")),
		c.Lookup("total_spent").Cell(),
		c.Lookup("orders_count").Cell(),
		c.Lookup("last_order_name").Cell(),
		TextPrefix + joinZips(c),
	}, true
}

// joinZips collects every non-empty zip across the customer's addresses in
// encounter order, separated by single spaces
func joinZips(c models.Record) string {
	addresses, ok := c.Lookup("addresses").Array()
	if !ok {
		return ""
	}
	var zips []string
	for _, a := range addresses {
		addr, ok := a.Object()
		if !ok {
			continue
		}
		zip := addr.Lookup("zip")
		if !zip.Truthy() {
			continue
		}
		if s, ok := zip.Text(); ok {
			zips = append(zips, s)
		}
	}
	return strings.Join(zips, " ")
}
