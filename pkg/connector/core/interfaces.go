// Package core defines the interfaces shared by shopsync's sources, row
// transformers and tabular sinks.
package core

import (
	"context"
	"net/url"

	"github.com/ultimatecoffee/shopsync/pkg/models"
)

// Row is one row of cells handed to a sink. Cells are nil (blank), string,
// bool, int64, float64 or time.Time.
type Row = []interface{}

// Source fetches every record of a paginated collection
type Source interface {
	// FetchAll requests endpoint with params and follows the pagination
	// chain, returning the records found under resultKey on each page in
	// arrival order.
	FetchAll(ctx context.Context, endpoint string, params url.Values, resultKey string) ([]models.Record, error)
}

// Transformer maps raw records to rows
type Transformer interface {
	// Name identifies the transformer in logs and metrics
	Name() string
	// Header returns the column titles for the rows Transform produces
	Header() Row
	// Transform returns the rows for records and the number of records that
	// did not qualify and produced no row. Output preserves input order.
	Transform(records []models.Record) (rows []Row, skipped int)
}

// Sink writes a rectangular block of rows into a named destination
// (a worksheet, a CSV file, an object)
type Sink interface {
	// Name returns the sink type, e.g. "sheets"
	Name() string
	// Write places rows so that rows[0][0] lands at (startRow, startCol),
	// both 1-based. Cells outside the written rectangle are left as they are.
	Write(ctx context.Context, destination string, startRow, startCol int, rows []Row) error
	// Close releases any resources held by the sink
	Close() error
}

// HealthChecker is implemented by sinks that can verify their destination
// is reachable before a run starts
type HealthChecker interface {
	Health(ctx context.Context) error
}
