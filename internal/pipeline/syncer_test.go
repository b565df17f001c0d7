package pipeline

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ultimatecoffee/shopsync/pkg/config"
	"github.com/ultimatecoffee/shopsync/pkg/connector/core"
	"github.com/ultimatecoffee/shopsync/pkg/errors"
	"github.com/ultimatecoffee/shopsync/pkg/models"
)

type fetchCall struct {
	endpoint  string
	params    url.Values
	resultKey string
}

type fakeSource struct {
	mu      sync.Mutex
	records map[string][]models.Record
	errs    map[string]error
	calls   []fetchCall
}

func (f *fakeSource) FetchAll(_ context.Context, endpoint string, params url.Values, resultKey string) ([]models.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fetchCall{endpoint: endpoint, params: params, resultKey: resultKey})
	if err := f.errs[endpoint]; err != nil {
		return nil, err
	}
	return f.records[endpoint], nil
}

type write struct {
	destination string
	row, col    int
	rows        []core.Row
}

type memorySink struct {
	mu     sync.Mutex
	writes []write
	err    error
}

func (m *memorySink) Name() string { return "memory" }

func (m *memorySink) Write(_ context.Context, destination string, startRow, startCol int, rows []core.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.writes = append(m.writes, write{destination: destination, row: startRow, col: startCol, rows: rows})
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) byDestination(dest string) []write {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []write
	for _, w := range m.writes {
		if w.destination == dest {
			out = append(out, w)
		}
	}
	return out
}

func decode(t *testing.T, src string) []models.Record {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(src))
	dec.UseNumber()
	var out []models.Record
	require.NoError(t, dec.Decode(&out))
	return out
}

const customersJSON = `[
	{"id": 1, "first_name": "Ann", "last_name": "Lee", "orders_count": 2, "total_spent": "40.00",
	 "created_at": "2021-01-02T03:04:05-08:00", "addresses": [{"zip": "98101"}]},
	{"id": 2, "first_name": "Bob", "orders_count": 0}
]`

const ordersJSON = `[
	{"id": 10, "order_number": 1001, "line_items": [
		{"quantity": 1, "vendor": "Roaster", "title": "Beans", "price": "18.00",
		 "discount_allocations": [{"amount": "1.5"}, {"amount": "2"}]},
		{"quantity": 2, "variant_id": 35137261633699, "title": "Mug", "price": "9.00"}
	]},
	{"id": 11, "order_number": 1002, "line_items": []}
]`

func newFixture(t *testing.T) (*config.Config, *fakeSource, *memorySink) {
	t.Helper()
	cfg := config.Default()
	source := &fakeSource{
		records: map[string][]models.Record{
			"customers.json": decode(t, customersJSON),
			"orders.json":    decode(t, ordersJSON),
		},
		errs: map[string]error{},
	}
	return cfg, source, &memorySink{}
}

func TestSyncer_UpdateFromShopify(t *testing.T) {
	cfg, source, sink := newFixture(t)
	syncer := NewSyncer(source, sink, PassesFromConfig(cfg), Options{}, zap.NewNop())

	report, err := syncer.UpdateFromShopify(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Passes, 2)
	assert.NotEmpty(t, report.RunID)

	require.Len(t, source.calls, 2)
	assert.Equal(t, "customers.json", source.calls[0].endpoint)
	assert.Equal(t, "customers", source.calls[0].resultKey)
	assert.Equal(t, "id,created_at,updated_at,first_name,last_name,total_spent,orders_count,last_order_name,addresses",
		source.calls[0].params.Get("fields"))
	assert.Equal(t, "250", source.calls[0].params.Get("limit"))

	assert.Equal(t, "orders.json", source.calls[1].endpoint)
	assert.Equal(t, "any", source.calls[1].params.Get("status"))
	assert.Equal(t, "paid", source.calls[1].params.Get("financial_status"))
	assert.Equal(t, "id,order_number,line_items", source.calls[1].params.Get("fields"))

	customers := sink.byDestination("Customers")
	require.Len(t, customers, 1)
	assert.Equal(t, 2, customers[0].row)
	assert.Equal(t, 1, customers[0].col)
	require.Len(t, customers[0].rows, 1)
	assert.Equal(t, int64(1), customers[0].rows[0][0])
	assert.Equal(t, "'98101", customers[0].rows[0][8])

	items := sink.byDestination("Order Items")
	require.Len(t, items, 1)
	require.Len(t, items[0].rows, 2)
	assert.Equal(t, 3.5, items[0].rows[0][6])
	assert.Equal(t, "Olympia Coffee", items[0].rows[1][3])

	assert.Equal(t, PassResult{Pass: "customers", Destination: "Customers", Records: 2, Rows: 1, Skipped: 1, Written: true,
		Duration: report.Passes[0].Duration}, report.Passes[0])
	assert.Equal(t, 1, report.Passes[1].Skipped)
	assert.Equal(t, 3, report.Rows())
}

func TestSyncer_Idempotent(t *testing.T) {
	cfg, source, sink := newFixture(t)
	syncer := NewSyncer(source, sink, PassesFromConfig(cfg), Options{}, zap.NewNop())

	_, err := syncer.UpdateFromShopify(context.Background())
	require.NoError(t, err)
	_, err = syncer.UpdateFromShopify(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.writes, 4)
	assert.Equal(t, sink.writes[0], sink.writes[2])
	assert.Equal(t, sink.writes[1], sink.writes[3])
}

func TestSyncer_EmptyPassDoesNotWrite(t *testing.T) {
	cfg, source, sink := newFixture(t)
	source.records["customers.json"] = decode(t, `[{"id": 5, "orders_count": 0}]`)
	source.records["orders.json"] = nil

	syncer := NewSyncer(source, sink, PassesFromConfig(cfg), Options{WriteHeaders: true}, zap.NewNop())
	report, err := syncer.UpdateFromShopify(context.Background())
	require.NoError(t, err)

	assert.Empty(t, sink.writes)
	assert.False(t, report.Passes[0].Written)
	assert.False(t, report.Passes[1].Written)
}

func TestSyncer_WriteHeaders(t *testing.T) {
	cfg, source, sink := newFixture(t)
	syncer := NewSyncer(source, sink, PassesFromConfig(cfg), Options{WriteHeaders: true}, zap.NewNop())

	_, err := syncer.UpdateCustomers(context.Background())
	require.NoError(t, err)

	writes := sink.byDestination("Customers")
	require.Len(t, writes, 2)
	assert.Equal(t, 1, writes[0].row)
	assert.Equal(t, "ID", writes[0].rows[0][0])
	assert.Equal(t, 2, writes[1].row)
}

func TestSyncer_DryRun(t *testing.T) {
	cfg, source, sink := newFixture(t)
	syncer := NewSyncer(source, sink, PassesFromConfig(cfg), Options{DryRun: true}, zap.NewNop())

	report, err := syncer.UpdateFromShopify(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sink.writes)
	assert.Equal(t, 3, report.Rows())
}

func TestSyncer_AbortsOnFirstFailure(t *testing.T) {
	cfg, source, sink := newFixture(t)
	source.errs["customers.json"] = errors.New(errors.ErrorTypeAuthentication, "401")

	syncer := NewSyncer(source, sink, PassesFromConfig(cfg), Options{}, zap.NewNop())
	report, err := syncer.UpdateFromShopify(context.Background())

	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeAuthentication))
	assert.Len(t, source.calls, 1)
	assert.Len(t, report.Passes, 1)
	assert.Empty(t, sink.writes)
}

func TestSyncer_ContinueOnError(t *testing.T) {
	cfg, source, sink := newFixture(t)
	source.errs["customers.json"] = errors.New(errors.ErrorTypeTransientFetch, "503")

	syncer := NewSyncer(source, sink, PassesFromConfig(cfg), Options{ContinueOnError: true}, zap.NewNop())
	report, err := syncer.UpdateFromShopify(context.Background())

	require.Error(t, err)
	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 1)
	assert.Len(t, source.calls, 2)
	assert.True(t, report.Passes[1].Written)
	assert.Len(t, sink.byDestination("Order Items"), 1)
}

func TestSyncer_ContinueOnErrorAggregates(t *testing.T) {
	cfg, source, sink := newFixture(t)
	sink.err = errors.New(errors.ErrorTypeSink, "quota exceeded")

	for _, parallel := range []bool{false, true} {
		syncer := NewSyncer(source, sink, PassesFromConfig(cfg),
			Options{ContinueOnError: true, Parallel: parallel}, zap.NewNop())
		_, err := syncer.UpdateFromShopify(context.Background())

		var merr *multierror.Error
		require.True(t, errors.As(err, &merr))
		assert.Len(t, merr.Errors, 2)
		assert.True(t, errors.IsType(merr.Errors[0], errors.ErrorTypeSink))
	}
}

func TestSyncer_Parallel(t *testing.T) {
	cfg, source, sink := newFixture(t)
	syncer := NewSyncer(source, sink, PassesFromConfig(cfg), Options{Parallel: true}, zap.NewNop())

	report, err := syncer.UpdateFromShopify(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "customers", report.Passes[0].Pass)
	assert.Equal(t, "orders", report.Passes[1].Pass)
	assert.Len(t, sink.byDestination("Customers"), 1)
	assert.Len(t, sink.byDestination("Order Items"), 1)
}

func TestSyncer_RunPass(t *testing.T) {
	cfg, source, sink := newFixture(t)
	syncer := NewSyncer(source, sink, PassesFromConfig(cfg), Options{}, zap.NewNop())

	result, err := syncer.RunPass(context.Background(), PassOrders)
	require.NoError(t, err)
	assert.Equal(t, "Order Items", result.Destination)
	assert.Equal(t, 2, result.Rows)
	assert.Len(t, source.calls, 1)

	_, err = syncer.RunPass(context.Background(), "products")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSyncer_PassLogsCarryRunAndPass(t *testing.T) {
	cfg, source, sink := newFixture(t)
	observed, logs := observer.New(zap.InfoLevel)
	syncer := NewSyncer(source, sink, PassesFromConfig(cfg), Options{}, zap.New(observed))

	report, err := syncer.RunPass(context.Background(), PassCustomers)
	require.NoError(t, err)

	entries := logs.FilterMessage("pass completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, report.RunID, fields["run_id"])
	assert.Equal(t, PassCustomers, fields["pass"])
	assert.Equal(t, "Customers", fields["destination"])

	runs := logs.FilterMessage("sync run completed").All()
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].ContextMap()["run_id"])
	assert.NotContains(t, runs[0].ContextMap(), "pass")
}
