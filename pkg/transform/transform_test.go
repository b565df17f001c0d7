package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsonpool "github.com/ultimatecoffee/shopsync/pkg/json"
	"github.com/ultimatecoffee/shopsync/pkg/models"
)

func record(t *testing.T, src string) models.Record {
	t.Helper()
	var r models.Record
	require.NoError(t, jsonpool.Unmarshal([]byte(src), &r))
	return r
}

func TestCustomerTransformer_Row(t *testing.T) {
	c := record(t, `{
		"id": 207119551,
		"created_at": "2020-10-01T09:30:00-04:00",
		"updated_at": "2020-11-15T18:00:00Z",
		"first_name": "Émile",
		"last_name": "Norman",
		"total_spent": "199.65",
		"orders_count": 3,
		"last_order_name": "#1169",
		"addresses": [{"zip": "98101"}, {"zip": ""}, {"zip": "98102"}, {"city": "Olympia"}]
	}`)

	row, ok := NewCustomerTransformer().Row(c)
	require.True(t, ok)
	require.Len(t, row, 9)

	assert.Equal(t, int64(207119551), row[0])
	assert.Equal(t, "É", row[1])
	assert.Equal(t, "Norman", row[2])
	created, ok := row[3].(time.Time)
	require.True(t, ok)
	assert.True(t, created.Equal(time.Date(2020, 10, 1, 13, 30, 0, 0, time.UTC)))
	assert.IsType(t, time.Time{}, row[4])
	assert.Equal(t, "199.65", row[5])
	assert.Equal(t, int64(3), row[6])
	assert.Equal(t, "#1169", row[7])
	assert.Equal(t, "'98101 98102", row[8])
}

func TestCustomerTransformer_Skip(t *testing.T) {
	tests := []struct {
		name string
		src  string
		emit bool
	}{
		{name: "absent orders_count", src: `{"id": 1}`},
		{name: "zero orders_count", src: `{"id": 1, "orders_count": 0}`},
		{name: "null orders_count", src: `{"id": 1, "orders_count": null}`},
		{name: "one order", src: `{"id": 1, "orders_count": 1}`, emit: true},
		{name: "many orders", src: `{"id": 1, "orders_count": 42}`, emit: true},
	}

	tr := NewCustomerTransformer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := tr.Row(record(t, tt.src))
			assert.Equal(t, tt.emit, ok)
		})
	}
}

func TestCustomerTransformer_AbsentFieldsAreBlank(t *testing.T) {
	row, ok := NewCustomerTransformer().Row(record(t, `{"orders_count": 1, "first_name": "", "created_at": "not a date"}`))
	require.True(t, ok)

	assert.Nil(t, row[0])
	assert.Nil(t, row[1])
	assert.Nil(t, row[2])
	assert.Nil(t, row[3])
	assert.Nil(t, row[4])
	assert.Equal(t, "'", row[8], "apostrophe appears even without zips")
}

func TestCustomerTransformer_Transform(t *testing.T) {
	records := []models.Record{
		record(t, `{"id": 1, "orders_count": 2}`),
		record(t, `{"id": 2, "orders_count": 0}`),
		record(t, `{"id": 3, "orders_count": 1}`),
	}
	rows, skipped := NewCustomerTransformer().Transform(records)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, int64(1), rows[0][0])
	assert.Equal(t, int64(3), rows[1][0])
	assert.Len(t, NewCustomerTransformer().Header(), len(rows[0]))
}

func TestDiscount(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want float64
	}{
		{name: "mixed allocations", src: `{"discount_allocations": [{"amount": 1.5}, {"amount": 2}, {}]}`, want: 3.5},
		{name: "string amounts", src: `{"discount_allocations": [{"amount": "1.25"}, {"amount": "0.75"}]}`, want: 2},
		{name: "no allocations", src: `{}`, want: 0},
		{name: "empty allocations", src: `{"discount_allocations": []}`, want: 0},
		{name: "decimal amounts sum exactly", src: `{"discount_allocations": [{"amount": "0.10"}, {"amount": "0.20"}]}`, want: 0.3},
		{name: "many small amounts", src: `{"discount_allocations": [{"amount": "0.01"}, {"amount": "0.01"}, {"amount": "0.01"}, {"amount": 0.07}]}`, want: 0.1},
		{name: "non numeric amount", src: `{"discount_allocations": [{"amount": "free"}, {"amount": 1}]}`, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Discount(record(t, tt.src)))
		})
	}
}

func TestOrderItemsTransformer_Rows(t *testing.T) {
	vendors := VendorTable{"35137261633699": "Olympia Coffee"}
	o := record(t, `{
		"id": 450789469,
		"order_number": 1001,
		"line_items": [
			{"quantity": 2, "vendor": "Ultimate", "title": "Espresso", "price": "12.00", "variant_id": 1,
			 "discount_allocations": [{"amount": "1.5"}, {"amount": 2}, {}]},
			{"quantity": 1, "vendor": null, "title": "Big Truck", "price": "15.00", "variant_id": 35137261633699},
			{"quantity": 1, "vendor": null, "title": "Mystery", "price": "9.00", "variant_id": 99999},
			{"quantity": 1, "vendor": "", "title": "No Variant", "price": "1.00"}
		]
	}`)

	rows := NewOrderItemsTransformer(vendors).Rows(o)
	require.Len(t, rows, 4)

	assert.Equal(t, Row{int64(450789469), int64(1001), int64(2), "Ultimate", "Espresso", "12.00", 3.5}, rows[0])
	assert.Equal(t, "Olympia Coffee", rows[1][3])
	assert.Nil(t, rows[2][3])
	assert.Nil(t, rows[3][3])
	assert.Equal(t, 0.0, rows[3][6])

	titles := []interface{}{rows[0][4], rows[1][4], rows[2][4], rows[3][4]}
	assert.Equal(t, []interface{}{"Espresso", "Big Truck", "Mystery", "No Variant"}, titles)
}

func TestOrderItemsTransformer_VendorFromStringVariant(t *testing.T) {
	vendors := VendorTable{"35137261633699": "Olympia Coffee"}
	rows := NewOrderItemsTransformer(vendors).Rows(record(t,
		`{"id": 1, "line_items": [{"vendor": null, "variant_id": "35137261633699"}]}`))
	require.Len(t, rows, 1)
	assert.Equal(t, "Olympia Coffee", rows[0][3])
}

func TestOrderItemsTransformer_Skip(t *testing.T) {
	tr := NewOrderItemsTransformer(nil)

	assert.Empty(t, tr.Rows(record(t, `{"id": 1}`)))
	assert.Empty(t, tr.Rows(record(t, `{"id": 1, "line_items": []}`)))
	assert.Empty(t, tr.Rows(record(t, `{"id": 1, "line_items": null}`)))

	rows, skipped := tr.Transform([]models.Record{
		record(t, `{"id": 1, "line_items": []}`),
		record(t, `{"id": 2, "line_items": [{"title": "a"}, {"title": "b"}]}`),
		record(t, `{"id": 3, "line_items": [{"title": "c"}]}`),
	})
	assert.Equal(t, 1, skipped)
	require.Len(t, rows, 3)
	assert.Equal(t, []interface{}{"a", "b", "c"}, []interface{}{rows[0][4], rows[1][4], rows[2][4]})
	assert.Len(t, tr.Header(), 7)
}

func TestTransform_Idempotent(t *testing.T) {
	src := `{"id": 9, "orders_count": 1, "addresses": [{"zip": "01234"}]}`
	a, _ := NewCustomerTransformer().Transform([]models.Record{record(t, src)})
	b, _ := NewCustomerTransformer().Transform([]models.Record{record(t, src)})
	assert.Equal(t, a, b)
	assert.Equal(t, "'01234", a[0][8])
}
