// Package transform flattens Shopify customer and order records into the
// fixed-width rows written to the sink.
//
// Missing fields never fail a transform: they become blank (nil) cells.
package transform

import (
	"strings"
	"time"

	"github.com/ultimatecoffee/shopsync/pkg/connector/core"
	"github.com/ultimatecoffee/shopsync/pkg/models"
)

// Row is one output row
type Row = core.Row

// TextPrefix forces spreadsheet rendering of a cell as text, which keeps
// leading zeros in postal codes
const TextPrefix = "'"

// parseTimestamp converts a Shopify timestamp into a time.Time. Absent,
// null and unparseable values become a blank cell.
func parseTimestamp(v models.Value) interface{} {
	s, ok := v.String()
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05Z0700", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return nil
}

// firstRune returns the first character of a non-empty string value
func firstRune(v models.Value) interface{} {
	s, ok := v.Text()
	if !ok || s == "" {
		return nil
	}
	for _, r := range s {
		return string(r)
	}
	return nil
}
