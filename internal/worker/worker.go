// Package worker runs the whole-session retry policy for one job and hands
// the outcome to the exporter.
package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
	"github.com/JakeFAU/replay-chat-crawler/internal/metrics"
)

// DefaultMaxAttempts is the number of capture sessions tried per job.
const DefaultMaxAttempts = 8

// Config controls Runner behavior.
type Config struct {
	MaxAttempts int    `mapstructure:"max_attempts"`
	Topic       string `mapstructure:"topic"`
}

// Report summarizes one finished job.
type Report struct {
	Job       crawler.CrawlJob
	Attempts  int
	Records   []crawler.MessageRecord
	Exhausted bool
	Artifact  crawler.Artifact
}

// Runner retries capture sessions for a job until one yields records.
type Runner struct {
	capturer  crawler.Capturer
	exporter  crawler.Exporter
	publisher crawler.Publisher
	clock     crawler.Clock
	ids       crawler.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Runner. publisher may be nil, in which case no
// completion event is sent.
func New(
	capturer crawler.Capturer,
	exporter crawler.Exporter,
	publisher crawler.Publisher,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Runner{
		capturer:  capturer,
		exporter:  exporter,
		publisher: publisher,
		clock:     clock,
		ids:       ids,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run captures job and exports the result exactly once. An exhausted job
// still exports (zero records) and is not reported as an error. Malformed
// durations and cancellation return an error without exporting.
func (r *Runner) Run(ctx context.Context, job crawler.CrawlJob) (Report, error) {
	logger := r.logger.With(zap.String("title", job.Title), zap.String("duration", job.ScheduledDuration))
	report := Report{Job: job}

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		report.Attempts = attempt
		records, err := r.capturer.Capture(ctx, job, attempt)
		if err != nil {
			if crawler.IsMalformedDuration(err) {
				metrics.ObserveJob("malformed", attempt)
				logger.Error("job has malformed duration; not retrying", zap.Error(err))
				return report, err
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				metrics.ObserveJob("canceled", attempt)
				return report, fmt.Errorf("capture canceled: %w", ctxErr)
			}
			logger.Warn("capture attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if len(records) > 0 {
			report.Records = records
			break
		}
		logger.Info("capture attempt returned no records", zap.Int("attempt", attempt))
	}

	if len(report.Records) == 0 {
		report.Exhausted = true
		exhausted := &crawler.RetryExhaustedError{Job: job, Attempts: report.Attempts}
		logger.Error("retry budget exhausted", zap.Error(exhausted))
	}

	artifact, err := r.exporter.Export(ctx, job, report.Records)
	if err != nil {
		metrics.ObserveJob("export_failed", report.Attempts)
		return report, fmt.Errorf("export %q: %w", job.Title, err)
	}
	report.Artifact = artifact
	logger.Info("job exported",
		zap.Int("attempts", report.Attempts),
		zap.Int("records", len(report.Records)),
		zap.Bool("exhausted", report.Exhausted),
		zap.String("artifact", artifact.URI),
	)

	r.publish(ctx, report, logger)

	status := "succeeded"
	if report.Exhausted {
		status = "exhausted"
	}
	metrics.ObserveJob(status, report.Attempts)
	return report, nil
}

// publish sends the completion event. Failures are logged only; the
// artifact is already on disk.
func (r *Runner) publish(ctx context.Context, report Report, logger *zap.Logger) {
	if r.publisher == nil || r.cfg.Topic == "" {
		return
	}
	runID := ""
	if r.ids != nil {
		id, err := r.ids.NewID()
		if err != nil {
			logger.Warn("generate run id", zap.Error(err))
		}
		runID = id
	}
	event := crawler.CompletionEvent{
		RunID:             runID,
		Title:             report.Job.Title,
		ScheduledDuration: report.Job.ScheduledDuration,
		Attempts:          report.Attempts,
		Records:           len(report.Records),
		Exhausted:         report.Exhausted,
		ArtifactURI:       report.Artifact.URI,
		MirrorURIs:        report.Artifact.MirrorURIs,
		SHA256:            report.Artifact.SHA256,
		FinishedAt:        r.clock.Now(),
	}
	msgID, err := r.publisher.Publish(ctx, r.cfg.Topic, event)
	if err != nil {
		logger.Warn("publish completion event failed", zap.String("topic", r.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("completion event published", zap.String("message_id", msgID))
}
