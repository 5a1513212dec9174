package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
	"github.com/JakeFAU/replay-chat-crawler/internal/jobsource"
)

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Validates the job list",
		Long: `Reads the job list and prints each job with its parsed duration and the
number of poll cycles a session would run. Malformed durations are
reported and make the command fail.`,
		RunE: runJobsCommand,
	}
	cmd.Flags().String("jobs", "", "job list file or directory (overrides jobs.path)")
	return cmd
}

func runJobsCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.Config()

	path := cfg.Jobs.Path
	if override, _ := cmd.Flags().GetString("jobs"); override != "" {
		path = override
	}
	source, err := jobsource.Open(path, cfg.Jobs.FilePrefix)
	if err != nil {
		return err
	}
	defer source.Close() //nolint:errcheck
	jobs, err := jobsource.ReadAll(source)
	if err != nil && !crawler.IsInvalidJob(err) {
		return err
	}
	invalidRows := err

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TITLE\tDURATION\tSECONDS\tEPOCHS")
	malformed := 0
	for _, job := range jobs {
		seconds, err := crawler.ParseDuration(job.ScheduledDuration)
		if err != nil {
			malformed++
			fmt.Fprintf(w, "%s\t%s\t-\t%v\n", job.Title, job.ScheduledDuration, err)
			continue
		}
		epochs := crawler.EpochCount(seconds, cfg.Session.PlaybackRate, cfg.Session.PollInterval.Seconds())
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", job.Title, job.ScheduledDuration, seconds, epochs)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if invalidRows != nil {
		fmt.Fprintln(cmd.OutOrStdout(), invalidRows)
	}
	if malformed > 0 {
		return fmt.Errorf("%d of %d jobs have malformed durations", malformed, len(jobs))
	}
	if invalidRows != nil {
		return fmt.Errorf("job list has invalid rows")
	}
	return nil
}
