// Package shopsync keeps a spreadsheet of a Shopify store's customers and
// order line items up to date.
//
// A run has two passes. The customers pass reads every customer from the
// Admin REST API and writes one row per customer that has placed an order
// into the "Customers" destination. The orders pass reads every paid order
// and writes one row per line item into "Order Items". Both passes follow
// Link header cursors until the last page and overwrite their destination
// starting at row 2, so a header row in row 1 is preserved.
//
// # Architecture
//
//   - pkg/connector/sources/shopify: cursor-paginated fetcher with retries,
//     rate limiting and a circuit breaker (pkg/clients)
//   - pkg/models: semi-structured records with absence-aware field access
//   - pkg/transform: record to row mapping for customers and order items
//   - pkg/connector/destinations: Google Sheets and CSV grid sinks (local
//     disk, GCS, S3) selected through pkg/connector/registry
//   - internal/pipeline: the Syncer that runs the passes
//   - cmd/shopsync: the CLI (sync, serve, config, version)
//
// # Quick Start
//
//	shopsync config init
//	export SHOPSYNC_SHOPIFY_BASE_URL=https://example.myshopify.com
//	export SHOPIFY=api_key:password
//	shopsync sync --config shopsync.yaml
package shopsync
