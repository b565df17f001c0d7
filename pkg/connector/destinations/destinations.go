// Package destinations links every tabular sink into the binary and builds
// the one selected by configuration
package destinations

import (
	"context"
	"strings"

	"github.com/ultimatecoffee/shopsync/pkg/config"
	"github.com/ultimatecoffee/shopsync/pkg/connector/core"
	"github.com/ultimatecoffee/shopsync/pkg/connector/registry"

	// Import all sinks to trigger init() registration
	_ "github.com/ultimatecoffee/shopsync/pkg/connector/destinations/grid"
	_ "github.com/ultimatecoffee/shopsync/pkg/connector/destinations/sheets"
)

// New creates the sink named by sink.type
func New(ctx context.Context, cfg *config.Config) (core.Sink, error) {
	return registry.CreateSink(ctx, strings.ToLower(cfg.Sink.Type), cfg)
}

// Available lists the registered sink types
func Available() []string {
	return registry.ListSinks()
}
