// Package pipeline runs the Shopify sync passes: each pass fetches every
// page of one collection, maps the records to rows and writes the rows into
// one sink destination.
//
// # Basic Usage
//
//	syncer := pipeline.NewSyncer(fetcher, sink, pipeline.PassesFromConfig(cfg),
//	    pipeline.OptionsFromConfig(cfg), logger)
//
//	// Customers then orders, the first failure aborts the run
//	report, err := syncer.UpdateFromShopify(ctx)
//
//	// A single pass
//	result, err := syncer.RunPass(ctx, pipeline.PassOrders)
package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ultimatecoffee/shopsync/pkg/config"
	"github.com/ultimatecoffee/shopsync/pkg/connector/core"
	"github.com/ultimatecoffee/shopsync/pkg/errors"
	"github.com/ultimatecoffee/shopsync/pkg/logger"
	"github.com/ultimatecoffee/shopsync/pkg/metrics"
	"github.com/ultimatecoffee/shopsync/pkg/observability"
	"github.com/ultimatecoffee/shopsync/pkg/transform"
)

// Pass names
const (
	PassCustomers = "customers"
	PassOrders    = "orders"
)

const (
	headerRow = 1
	dataRow   = 2
	firstCol  = 1
)

// Pass describes one collection synced into one destination
type Pass struct {
	Name        string
	Endpoint    string
	ResultKey   string
	Params      url.Values
	Destination string
	Transformer core.Transformer
}

// CustomersPass syncs customers.json into the customers destination
func CustomersPass(cfg *config.Config) Pass {
	params := url.Values{}
	params.Set("fields", strings.Join(transform.CustomerFields, ","))
	params.Set("limit", strconv.Itoa(cfg.Shopify.PageSize))

	return Pass{
		Name:        PassCustomers,
		Endpoint:    "customers.json",
		ResultKey:   "customers",
		Params:      params,
		Destination: cfg.Sync.CustomersDestination,
		Transformer: transform.NewCustomerTransformer(),
	}
}

// OrdersPass syncs the paid orders from orders.json into the order items
// destination, one row per line item
func OrdersPass(cfg *config.Config) Pass {
	params := url.Values{}
	params.Set("status", cfg.Sync.OrderStatus)
	params.Set("financial_status", cfg.Sync.FinancialStatus)
	params.Set("fields", strings.Join(transform.OrderFields, ","))
	params.Set("limit", strconv.Itoa(cfg.Shopify.PageSize))

	return Pass{
		Name:        PassOrders,
		Endpoint:    "orders.json",
		ResultKey:   "orders",
		Params:      params,
		Destination: cfg.Sync.OrdersDestination,
		Transformer: transform.NewOrderItemsTransformer(transform.VendorTable(cfg.Vendors)),
	}
}

// PassesFromConfig returns the customers and orders passes, in run order
func PassesFromConfig(cfg *config.Config) []Pass {
	return []Pass{CustomersPass(cfg), OrdersPass(cfg)}
}

// Options control how a run executes
type Options struct {
	// WriteHeaders writes the column titles into row 1 before the data
	WriteHeaders bool
	// ContinueOnError runs every pass and aggregates the failures
	ContinueOnError bool
	// Parallel runs the passes concurrently
	Parallel bool
	// DryRun fetches and transforms without writing
	DryRun bool
	// Timeout bounds the whole run (0 = no deadline)
	Timeout time.Duration
}

// OptionsFromConfig builds run options from configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		WriteHeaders:    cfg.Sink.WriteHeaders,
		ContinueOnError: cfg.Sync.ContinueOnError,
		Parallel:        cfg.Sync.ParallelPasses,
		Timeout:         cfg.Timeouts.Run,
	}
}

// PassResult summarizes one pass
type PassResult struct {
	Pass        string
	Destination string
	Records     int
	Rows        int
	Skipped     int
	Written     bool
	Duration    time.Duration
	Err         error
}

// Report summarizes a run
type Report struct {
	RunID    string
	Passes   []PassResult
	Duration time.Duration
}

// Rows returns the total rows produced across passes
func (r *Report) Rows() int {
	n := 0
	for _, p := range r.Passes {
		n += p.Rows
	}
	return n
}

// Syncer runs sync passes from a source into a sink
type Syncer struct {
	source core.Source
	sink   core.Sink
	passes []Pass
	opts   Options
	logger *zap.Logger
}

// NewSyncer creates a syncer for passes, which run in the order given
func NewSyncer(source core.Source, sink core.Sink, passes []Pass, opts Options, log *zap.Logger) *Syncer {
	if log == nil {
		log = logger.Get()
	}
	return &Syncer{
		source: source,
		sink:   sink,
		passes: passes,
		opts:   opts,
		logger: log.With(zap.String("component", "syncer")),
	}
}

// UpdateFromShopify runs every pass
func (s *Syncer) UpdateFromShopify(ctx context.Context) (*Report, error) {
	return s.run(ctx, s.passes)
}

// UpdateCustomers runs only the customers pass
func (s *Syncer) UpdateCustomers(ctx context.Context) (*Report, error) {
	return s.runNamed(ctx, PassCustomers)
}

// UpdateOrders runs only the orders pass
func (s *Syncer) UpdateOrders(ctx context.Context) (*Report, error) {
	return s.runNamed(ctx, PassOrders)
}

// RunPass runs a single pass by name
func (s *Syncer) RunPass(ctx context.Context, name string) (PassResult, error) {
	report, err := s.runNamed(ctx, name)
	if report == nil || len(report.Passes) == 0 {
		return PassResult{Pass: name, Err: err}, err
	}
	return report.Passes[0], err
}

func (s *Syncer) runNamed(ctx context.Context, name string) (*Report, error) {
	for _, p := range s.passes {
		if p.Name == name {
			return s.run(ctx, []Pass{p})
		}
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown pass %q", name)
}

func (s *Syncer) run(ctx context.Context, passes []Pass) (*Report, error) {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	runID := uuid.NewString()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx, span := observability.StartSpan(ctx, "sync.run",
		attribute.String("sync.run_id", runID),
		attribute.Int("sync.passes", len(passes)))

	start := time.Now()
	report := &Report{RunID: runID, Passes: make([]PassResult, len(passes))}

	var err error
	if s.opts.Parallel && len(passes) > 1 {
		err = s.runParallel(ctx, passes, report)
	} else {
		err = s.runSequential(ctx, passes, report)
	}
	report.Duration = time.Since(start)

	span.SetAttribute("sync.rows", report.Rows())
	span.End(err)

	log := logger.WithContext(ctx, s.logger).With(zap.Duration("duration", report.Duration))
	if err != nil {
		log.Error("sync run failed", zap.Error(err))
	} else {
		log.Info("sync run completed", zap.Int("rows", report.Rows()))
	}
	return report, err
}

func (s *Syncer) runSequential(ctx context.Context, passes []Pass, report *Report) error {
	var result *multierror.Error
	ran := 0
	for i, p := range passes {
		report.Passes[i] = s.runPass(ctx, p)
		ran++
		if err := report.Passes[i].Err; err != nil {
			if !s.opts.ContinueOnError {
				report.Passes = report.Passes[:ran]
				return err
			}
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (s *Syncer) runParallel(ctx context.Context, passes []Pass, report *Report) error {
	if s.opts.ContinueOnError {
		var (
			mu     sync.Mutex
			result *multierror.Error
			g      errgroup.Group
		)
		for i, p := range passes {
			g.Go(func() error {
				report.Passes[i] = s.runPass(ctx, p)
				if err := report.Passes[i].Err; err != nil {
					mu.Lock()
					result = multierror.Append(result, err)
					mu.Unlock()
				}
				return nil
			})
		}
		_ = g.Wait()
		return result.ErrorOrNil()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range passes {
		g.Go(func() error {
			report.Passes[i] = s.runPass(gctx, p)
			return report.Passes[i].Err
		})
	}
	return g.Wait()
}

func (s *Syncer) runPass(ctx context.Context, p Pass) PassResult {
	ctx = context.WithValue(ctx, logger.PassKey, p.Name)
	ctx, span := observability.StartSpan(ctx, "sync.pass",
		attribute.String("sync.pass", p.Name),
		attribute.String("sync.destination", p.Destination))
	log := logger.WithContext(ctx, s.logger).With(zap.String("destination", p.Destination))

	timer := metrics.NewTimer()
	result := PassResult{Pass: p.Name, Destination: p.Destination}
	result.Err = s.executePass(ctx, p, &result, log)
	result.Duration = timer.Stop()

	metrics.ObservePass(p.Name, result.Duration, result.Err)
	span.SetAttribute("sync.records", result.Records)
	span.SetAttribute("sync.rows", result.Rows)
	span.End(result.Err)

	if result.Err != nil {
		log.Error("pass failed", zap.Error(result.Err))
	} else {
		log.Info("pass completed",
			zap.Int("records", result.Records),
			zap.Int("rows", result.Rows),
			zap.Int("skipped", result.Skipped),
			zap.Bool("written", result.Written),
			zap.Duration("duration", result.Duration))
	}
	return result
}

func (s *Syncer) executePass(ctx context.Context, p Pass, result *PassResult, log *zap.Logger) error {
	records, err := s.source.FetchAll(ctx, p.Endpoint, p.Params, p.ResultKey)
	if err != nil {
		return errors.Wrap(err, errors.TypeOf(err), fmt.Sprintf("%s pass: fetch failed", p.Name))
	}
	result.Records = len(records)

	rows, skipped := p.Transformer.Transform(records)
	result.Rows = len(rows)
	result.Skipped = skipped
	metrics.RecordsSkipped.WithLabelValues(p.Name).Add(float64(skipped))

	if s.opts.DryRun {
		log.Info("dry run, skipping write", zap.Int("rows", len(rows)))
		return nil
	}
	if len(rows) == 0 {
		log.Info("no rows produced, destination left untouched")
		return nil
	}

	if s.opts.WriteHeaders {
		if err := s.sink.Write(ctx, p.Destination, headerRow, firstCol, []core.Row{p.Transformer.Header()}); err != nil {
			return errors.Wrap(err, errors.ErrorTypeSink, fmt.Sprintf("%s pass: header write failed", p.Name))
		}
	}
	if err := s.sink.Write(ctx, p.Destination, dataRow, firstCol, rows); err != nil {
		return errors.Wrap(err, errors.ErrorTypeSink, fmt.Sprintf("%s pass: write failed", p.Name))
	}

	result.Written = true
	metrics.RowsWritten.WithLabelValues(p.Destination).Add(float64(len(rows)))
	return nil
}
