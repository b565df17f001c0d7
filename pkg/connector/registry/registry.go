// Package registry maps sink type names to the factories that build them.
// Sink packages register themselves from init, so importing a sink package
// is enough to make its type selectable in configuration.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ultimatecoffee/shopsync/pkg/config"
	"github.com/ultimatecoffee/shopsync/pkg/connector/core"
	"github.com/ultimatecoffee/shopsync/pkg/errors"
	"github.com/ultimatecoffee/shopsync/pkg/logger"
)

// SinkFactory creates a sink from the run configuration
type SinkFactory func(ctx context.Context, cfg *config.Config) (core.Sink, error)

// Registry manages sink registration and instantiation
type Registry struct {
	sinks map[string]SinkFactory
	mu    sync.RWMutex
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sinks: make(map[string]SinkFactory),
	}
}

// RegisterSink registers a sink factory under name
func (r *Registry) RegisterSink(name string, factory SinkFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sink %s already registered", name))
	}

	r.sinks[name] = factory
	logger.Debug("sink registered", zap.String("name", name))
	return nil
}

// CreateSink builds the sink registered under name
func (r *Registry) CreateSink(ctx context.Context, name string, cfg *config.Config) (core.Sink, error) {
	r.mu.RLock()
	factory, exists := r.sinks[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("sink %s not found", name))
	}

	sink, err := factory(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create sink %s", name))
	}
	return sink, nil
}

// ListSinks returns the registered sink names in sorted order
func (r *Registry) ListSinks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasSink checks if a sink is registered
func (r *Registry) HasSink(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sinks[name]
	return exists
}

// Clear removes all registered sinks (mainly for testing)
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = make(map[string]SinkFactory)
}

// RegisterSink registers a sink in the global registry
func RegisterSink(name string, factory SinkFactory) error {
	return globalRegistry.RegisterSink(name, factory)
}

// CreateSink creates a sink from the global registry
func CreateSink(ctx context.Context, name string, cfg *config.Config) (core.Sink, error) {
	return globalRegistry.CreateSink(ctx, name, cfg)
}

// ListSinks returns registered sinks from the global registry
func ListSinks() []string {
	return globalRegistry.ListSinks()
}

// HasSink checks if a sink is registered in the global registry
func HasSink(name string) bool {
	return globalRegistry.HasSink(name)
}

// GetRegistry returns the global registry instance
func GetRegistry() *Registry {
	return globalRegistry
}
