package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/replay-chat-crawler/internal/dispatcher"
	"github.com/JakeFAU/replay-chat-crawler/internal/jobsource"
	"github.com/JakeFAU/replay-chat-crawler/internal/logging"
	"github.com/JakeFAU/replay-chat-crawler/internal/metrics"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Runs every job in the job list",
		Long: `Reads the job list and launches one capture worker per job, keeping the
number of running workers near dispatcher.capacity. Worker failures are
counted and do not stop the crawl.`,
		Annotations: map[string]string{roleAnnotation: logging.RoleDispatcher},
		RunE:        runCrawlCommand,
	}
	cmd.Flags().String("jobs", "", "job list file or directory (overrides jobs.path)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	path := cfg.Jobs.Path
	if override, _ := cmd.Flags().GetString("jobs"); override != "" {
		path = override
	}
	source, err := jobsource.Open(path, cfg.Jobs.FilePrefix)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := source.Close(); cerr != nil {
			logger.Warn("close job list", zap.Error(cerr))
		}
	}()
	logger.Info("job list opened", zap.String("path", source.Path()))

	d, err := appInstance.Dispatcher(source, cfgFile)
	if err != nil {
		return fmt.Errorf("init dispatcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runWithMetrics(ctx, cfg.Metrics.Addr, logger, d.Run)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run dispatcher: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "admitted=%d completed=%d invalid_jobs=%d launch_failures=%d worker_failures=%d\n",
		summary.Admitted, summary.Completed, summary.InvalidJobs, summary.LaunchFailures, summary.WorkerFailures)
	return nil
}

// runWithMetrics serves metrics for as long as run takes. A metrics server
// failure cancels the run.
func runWithMetrics(
	ctx context.Context,
	addr string,
	logger *zap.Logger,
	run func(context.Context) (dispatcher.Summary, error),
) (dispatcher.Summary, error) {
	var summary dispatcher.Summary
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()

	g.Go(func() error {
		return metrics.Serve(serveCtx, addr, logger)
	})
	g.Go(func() error {
		defer stopServe()
		var err error
		summary, err = run(gctx)
		return err
	})
	err := g.Wait()
	return summary, err
}
