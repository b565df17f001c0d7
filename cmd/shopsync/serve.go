package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ultimatecoffee/shopsync/internal/pipeline"
	"github.com/ultimatecoffee/shopsync/pkg/observability"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var (
		interval time.Duration
		addr     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Sync periodically and expose /metrics and /healthz",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("interval") {
				cfg.Sync.Interval = interval
			}
			if cmd.Flags().Changed("addr") {
				cfg.Observability.MetricsAddr = addr
			}
			if cfg.Observability.MetricsAddr == "" {
				cfg.Observability.MetricsAddr = ":9090"
			}
			if cfg.Sync.Interval <= 0 {
				return fmt.Errorf("sync.interval must be positive")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			s := &server{syncer: a.syncer, logger: a.logger}
			return s.serve(ctx, cfg.Observability.MetricsAddr, cfg.Sync.Interval)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", time.Hour, "Time between sync runs; overrides sync.interval")
	cmd.Flags().StringVar(&addr, "addr", ":9090", "Listen address for /metrics and /healthz; overrides observability.metrics_addr")
	return cmd
}

// server runs the sync loop alongside the metrics endpoint
type server struct {
	syncer *pipeline.Syncer
	logger *zap.Logger

	lastRun atomic.Value // runOutcome
	runs    atomic.Int64
}

type runOutcome struct{ err error }

func (s *server) serve(ctx context.Context, addr string, interval time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("metrics server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *server) runOnce(ctx context.Context) {
	_, err := s.syncer.UpdateFromShopify(ctx)
	s.runs.Add(1)
	s.lastRun.Store(runOutcome{err: err})
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.healthz)
	return observability.TracingMiddleware(mux)
}

// healthz reports 503 once the latest run has failed, 200 otherwise
func (s *server) healthz(w http.ResponseWriter, _ *http.Request) {
	if out, ok := s.lastRun.Load().(runOutcome); ok && out.err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, "last run failed: %v\n", out.err)
		return
	}
	fmt.Fprintf(w, "ok (%d runs)\n", s.runs.Load())
}
