package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
	"github.com/JakeFAU/replay-chat-crawler/internal/logging"
)

// newCaptureCmd is the worker entry point. The dispatcher's process
// launcher invokes it once per job.
func newCaptureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Captures the chat of one broadcast",
		Long: `Runs capture sessions for a single broadcast, retrying while they come back
empty, and writes the transcript. Exits non-zero when every attempt came
back empty or the job could not run.`,
		Annotations: map[string]string{roleAnnotation: logging.RoleWorker},
		RunE:        runCaptureCommand,
	}
	cmd.Flags().String("title", "", "broadcast title")
	cmd.Flags().String("url", "", "replay page URL")
	cmd.Flags().String("duration", "", "scheduled duration as h:m:s")
	for _, name := range []string{"title", "url", "duration"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runCaptureCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	job := crawler.CrawlJob{}
	job.Title, _ = cmd.Flags().GetString("title")
	job.SourceURL, _ = cmd.Flags().GetString("url")
	job.ScheduledDuration, _ = cmd.Flags().GetString("duration")

	runner, err := appInstance.Runner()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := runner.Run(ctx, job)
	if err != nil {
		return fmt.Errorf("capture %q: %w", job.Title, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d records\t%d attempts\n", report.Artifact.Path, len(report.Records), report.Attempts)
	if report.Exhausted {
		return fmt.Errorf("capture %q: no chat captured after %d attempts", job.Title, report.Attempts)
	}
	return nil
}
