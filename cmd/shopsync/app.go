package main

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/ultimatecoffee/shopsync/internal/pipeline"
	"github.com/ultimatecoffee/shopsync/pkg/clients"
	"github.com/ultimatecoffee/shopsync/pkg/config"
	"github.com/ultimatecoffee/shopsync/pkg/connector/core"
	"github.com/ultimatecoffee/shopsync/pkg/connector/destinations"
	"github.com/ultimatecoffee/shopsync/pkg/connector/sources/shopify"
	"github.com/ultimatecoffee/shopsync/pkg/errors"
	"github.com/ultimatecoffee/shopsync/pkg/logger"
	"github.com/ultimatecoffee/shopsync/pkg/observability"
	"github.com/ultimatecoffee/shopsync/pkg/secrets"
)

// app holds everything a sync run needs
type app struct {
	cfg     *config.Config
	syncer  *pipeline.Syncer
	sink    core.Sink
	client  *clients.HTTPClient
	closers []io.Closer
	logger  *zap.Logger
}

// newApp wires the fetcher, sink and syncer from cfg. With dryRun no sink
// is created.
func newApp(ctx context.Context, cfg *config.Config, dryRun bool) (*app, error) {
	log := logger.With(zap.String("component", "shopsync"))
	a := &app{cfg: cfg, logger: log}

	if cfg.Observability.Tracing {
		if err := observability.InitTracing(observability.TracingConfig{
			ServiceName:    "shopsync",
			ServiceVersion: version,
			SamplingRate:   cfg.Observability.TracingSampleRate,
		}); err != nil {
			return nil, err
		}
	}

	store, err := secrets.New(ctx, cfg.Secrets)
	if err != nil {
		return nil, err
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.client = clients.NewHTTPClient(httpConfig(cfg), log)
	a.closers = append(a.closers, a.client)

	if !dryRun {
		sink, err := destinations.New(ctx, cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.sink = sink
		a.closers = append(a.closers, sink)

		if hc, ok := sink.(core.HealthChecker); ok {
			if err := hc.Health(ctx); err != nil {
				a.Close()
				return nil, errors.Wrap(err, errors.ErrorTypeSink, "sink health check failed")
			}
		}
	}

	fetcher := shopify.NewFetcher(shopify.OptionsFromConfig(cfg), a.client, store, log)

	opts := pipeline.OptionsFromConfig(cfg)
	opts.DryRun = dryRun
	a.syncer = pipeline.NewSyncer(fetcher, a.sink, pipeline.PassesFromConfig(cfg), opts, log)
	return a, nil
}

// httpConfig maps the reliability and timeout sections onto the client
func httpConfig(cfg *config.Config) *clients.HTTPConfig {
	hc := clients.DefaultHTTPConfig()
	if cfg.Shopify.UserAgent != "" {
		hc.UserAgent = cfg.Shopify.UserAgent
	}
	hc.RequestTimeout = cfg.Timeouts.Request
	hc.ResponseHeaderTimeout = cfg.Timeouts.Request
	hc.DialTimeout = cfg.Timeouts.Connection
	hc.TLSHandshakeTimeout = cfg.Timeouts.Connection
	hc.RateLimit = cfg.Reliability.RateLimitPerSec
	hc.RateBurst = cfg.Reliability.RateBurst
	hc.CircuitBreakerEnabled = cfg.Reliability.CircuitBreaker
	if cfg.Reliability.FailureThreshold > 0 {
		hc.FailureThreshold = cfg.Reliability.FailureThreshold
	}
	return hc
}

// Close releases clients and flushes spans
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("failed to close resource", zap.Error(err))
		}
	}
	a.closers = nil

	if err := observability.Shutdown(context.Background()); err != nil {
		a.logger.Warn("failed to flush traces", zap.Error(err))
	}
}
