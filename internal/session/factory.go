package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

// Factory implements crawler.Capturer by building a fresh Session per call.
type Factory struct {
	surfaces crawler.SurfaceFactory
	clock    crawler.Clock
	ids      crawler.IDGenerator
	cfg      Config
	logger   *zap.Logger
}

// NewFactory validates cfg and returns a Factory.
func NewFactory(
	surfaces crawler.SurfaceFactory,
	clock crawler.Clock,
	ids crawler.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) (*Factory, error) {
	if surfaces == nil || clock == nil || ids == nil {
		return nil, fmt.Errorf("surface factory, clock and id generator are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ExceedsRecommendation() {
		logger.Warn("poll_interval * playback_rate should stay below 2-3 minutes of broadcast time",
			zap.Duration("span", cfg.PlaybackSpan()),
		)
	}
	return &Factory{
		surfaces: surfaces,
		clock:    clock,
		ids:      ids,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Capture runs one independent capture session for job.
func (f *Factory) Capture(ctx context.Context, job crawler.CrawlJob, attempt int) ([]crawler.MessageRecord, error) {
	runID, err := f.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("new run id: %w", err)
	}
	return New(job, runID, attempt, f.surfaces, f.clock, f.cfg, f.logger).Run(ctx)
}
