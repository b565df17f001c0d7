package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ultimatecoffee/shopsync/internal/pipeline"
	"github.com/ultimatecoffee/shopsync/pkg/config"
	"github.com/ultimatecoffee/shopsync/pkg/metrics"
)

type syncFlags struct {
	dryRun          bool
	continueOnError bool
	parallel        bool
}

func newSyncCommand(flags *globalFlags) *cobra.Command {
	sf := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync customers and orders once",
		Long: `Fetch all customers and all paid orders and rewrite the Customers and
Order Items destinations, starting at row 2. The first failing pass aborts
the run unless --continue-on-error is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, flags, sf, "")
		},
	}
	cmd.PersistentFlags().BoolVar(&sf.dryRun, "dry-run", false, "Fetch and transform without writing to the sink")
	cmd.PersistentFlags().BoolVar(&sf.continueOnError, "continue-on-error", false, "Run every pass and report all failures")
	cmd.PersistentFlags().BoolVar(&sf.parallel, "parallel", false, "Run the customer and order passes concurrently")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "customers",
			Short: "Sync customers only",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSync(cmd, flags, sf, pipeline.PassCustomers)
			},
		},
		&cobra.Command{
			Use:   "orders",
			Short: "Sync order line items only",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSync(cmd, flags, sf, pipeline.PassOrders)
			},
		},
	)
	return cmd
}

func (sf *syncFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("continue-on-error") {
		cfg.Sync.ContinueOnError = sf.continueOnError
	}
	if cmd.Flags().Changed("parallel") {
		cfg.Sync.ParallelPasses = sf.parallel
	}
}

func runSync(cmd *cobra.Command, flags *globalFlags, sf *syncFlags, pass string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	sf.apply(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, sf.dryRun)
	if err != nil {
		return err
	}
	defer a.Close()

	report, runErr := runOnce(ctx, a.syncer, pass)
	if report != nil {
		printReport(cmd.OutOrStdout(), report, sf.dryRun)
	}

	if gw := cfg.Observability.PushGateway; gw != "" {
		if err := metrics.Push(gw, "shopsync"); err != nil {
			a.logger.Warn("failed to push metrics", zap.String("gateway", gw), zap.Error(err))
		}
	}
	return runErr
}

func runOnce(ctx context.Context, syncer *pipeline.Syncer, pass string) (*pipeline.Report, error) {
	switch pass {
	case pipeline.PassCustomers:
		return syncer.UpdateCustomers(ctx)
	case pipeline.PassOrders:
		return syncer.UpdateOrders(ctx)
	default:
		return syncer.UpdateFromShopify(ctx)
	}
}

func printReport(out io.Writer, report *pipeline.Report, dryRun bool) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PASS\tDESTINATION\tRECORDS\tROWS\tSKIPPED\tWRITTEN\tDURATION")
	for _, p := range report.Passes {
		if p.Pass == "" {
			continue
		}
		written := fmt.Sprint(p.Written)
		if dryRun {
			written = "dry-run"
		}
		if p.Err != nil {
			written = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			p.Pass, p.Destination, p.Records, p.Rows, p.Skipped, written, p.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()
}
