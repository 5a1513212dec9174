package export

import (
	"context"
	"maps"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

// Mirror copies a finished artifact somewhere else. It returns the location
// of the copy, or "" when the copy has no single address.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, job crawler.CrawlJob, records []crawler.MessageRecord, artifact crawler.Artifact) (string, error)
}

// Pipeline writes the primary artifact and then runs every mirror
// concurrently. Mirror failures are logged; the primary artifact stays
// authoritative.
type Pipeline struct {
	primary crawler.Exporter
	mirrors []Mirror
	logger  *zap.Logger
}

// NewPipeline builds a Pipeline around primary.
func NewPipeline(primary crawler.Exporter, logger *zap.Logger, mirrors ...Mirror) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{primary: primary, mirrors: mirrors, logger: logger}
}

// Export implements crawler.Exporter.
func (p *Pipeline) Export(ctx context.Context, job crawler.CrawlJob, records []crawler.MessageRecord) (crawler.Artifact, error) {
	artifact, err := p.primary.Export(ctx, job, records)
	if err != nil {
		return crawler.Artifact{}, err
	}
	if len(p.mirrors) == 0 {
		return artifact, nil
	}

	var (
		g    errgroup.Group
		mu   sync.Mutex
		uris = make(map[string]string, len(p.mirrors))
	)
	for _, m := range p.mirrors {
		g.Go(func() error {
			uri, err := m.Mirror(ctx, job, records, artifact)
			if err != nil {
				p.logger.Warn("mirror failed",
					zap.String("mirror", m.Name()),
					zap.String("title", job.Title),
					zap.String("artifact", artifact.Path),
					zap.Error(err),
				)
				return err
			}
			if uri != "" {
				mu.Lock()
				uris[m.Name()] = uri
				mu.Unlock()
			}
			p.logger.Debug("mirror done", zap.String("mirror", m.Name()), zap.String("title", job.Title), zap.String("uri", uri))
			return nil
		})
	}
	_ = g.Wait()
	if len(uris) > 0 {
		artifact.MirrorURIs = maps.Clone(uris)
	}
	return artifact, nil
}
