// Package app builds and owns the long-lived services a command needs.
package app

import (
	"context"
	"fmt"
	"os"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/replay-chat-crawler/internal/clock/system"
	"github.com/JakeFAU/replay-chat-crawler/internal/config"
	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
	"github.com/JakeFAU/replay-chat-crawler/internal/dispatcher"
	"github.com/JakeFAU/replay-chat-crawler/internal/export"
	"github.com/JakeFAU/replay-chat-crawler/internal/hash/sha256"
	"github.com/JakeFAU/replay-chat-crawler/internal/id/uuid"
	"github.com/JakeFAU/replay-chat-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/replay-chat-crawler/internal/session"
	"github.com/JakeFAU/replay-chat-crawler/internal/storage/gcs"
	"github.com/JakeFAU/replay-chat-crawler/internal/storage/postgres"
	"github.com/JakeFAU/replay-chat-crawler/internal/surface/headless"
	"github.com/JakeFAU/replay-chat-crawler/internal/worker"
)

// App holds the exporter pipeline, the optional publisher and the shared
// clock and ID generator. It is built once per process.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     crawler.Clock
	ids       crawler.IDGenerator
	exporter  crawler.Exporter
	publisher crawler.Publisher
	surfaces  crawler.SurfaceFactory
	closers   []func() error
}

// Options overrides collaborators, mostly for tests. Nil fields use the
// production implementation.
type Options struct {
	Surfaces  crawler.SurfaceFactory
	Publisher crawler.Publisher
	Mirrors   []export.Mirror
}

// New builds the services described by cfg. Mirrors and the publisher are
// only connected when their destinations are configured.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:       cfg,
		logger:    logger,
		clock:     system.New(),
		ids:       uuid.New(),
		surfaces:  opts.Surfaces,
		publisher: opts.Publisher,
	}

	csvExporter, err := export.NewCSV(cfg.Output, sha256.New())
	if err != nil {
		return nil, fmt.Errorf("init csv exporter: %w", err)
	}

	mirrors := opts.Mirrors
	if mirrors == nil {
		mirrors, err = a.buildMirrors(ctx)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	a.exporter = export.NewPipeline(csvExporter, logger.Named("export"), mirrors...)

	if a.publisher == nil && cfg.Export.PubSub.Topic != "" {
		pub, err := pubsub.NewFromProject(ctx, cfg.Export.PubSub.ProjectID)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		a.publisher = pub
		a.closers = append(a.closers, pub.Close)
		logger.Info("completion events enabled", zap.String("topic", cfg.Export.PubSub.Topic))
	}

	if a.surfaces == nil {
		a.surfaces = headless.NewFactory(cfg.Browser)
	}
	return a, nil
}

func (a *App) buildMirrors(ctx context.Context) ([]export.Mirror, error) {
	var mirrors []export.Mirror
	if a.cfg.Export.GCS.Bucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		m, err := gcs.New(client, a.cfg.Export.GCS)
		if err != nil {
			return nil, fmt.Errorf("init gcs mirror: %w", err)
		}
		mirrors = append(mirrors, m)
		a.logger.Info("gcs mirror enabled", zap.String("bucket", a.cfg.Export.GCS.Bucket))
	}
	if a.cfg.Export.Postgres.DSN != "" {
		store, err := postgres.NewChatStore(ctx, a.cfg.Export.Postgres)
		if err != nil {
			return nil, fmt.Errorf("init postgres mirror: %w", err)
		}
		a.closers = append(a.closers, func() error { store.Close(); return nil })
		mirrors = append(mirrors, store)
		a.logger.Info("postgres mirror enabled", zap.String("table", a.cfg.Export.Postgres.Table))
	}
	return mirrors, nil
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Runner builds the retry runner that captures and exports one job.
func (a *App) Runner() (*worker.Runner, error) {
	capturer, err := session.NewFactory(a.surfaces, a.clock, a.ids, a.cfg.Session, a.logger.Named("session"))
	if err != nil {
		return nil, fmt.Errorf("init session factory: %w", err)
	}
	return worker.New(
		capturer,
		a.exporter,
		a.publisher,
		a.clock,
		a.ids,
		a.cfg.WorkerConfig(),
		a.logger.Named("worker"),
	), nil
}

// Launcher returns the configured worker launcher. configPath is forwarded
// to child processes.
func (a *App) Launcher(configPath string) (dispatcher.Launcher, error) {
	switch a.cfg.Dispatcher.Launcher {
	case config.LauncherInProcess:
		runner, err := a.Runner()
		if err != nil {
			return nil, err
		}
		return &dispatcher.InProcessLauncher{Runner: runner}, nil
	case config.LauncherProcess, "":
		return &dispatcher.ProcessLauncher{
			ConfigPath: configPath,
			Stdout:     os.Stdout,
			Stderr:     os.Stderr,
			Logger:     a.logger.Named("launcher"),
		}, nil
	default:
		return nil, fmt.Errorf("unknown launcher %q", a.cfg.Dispatcher.Launcher)
	}
}

// Dispatcher builds a dispatcher over source.
func (a *App) Dispatcher(source crawler.JobSource, configPath string) (*dispatcher.Dispatcher, error) {
	launcher, err := a.Launcher(configPath)
	if err != nil {
		return nil, err
	}
	return dispatcher.New(source, launcher, a.clock, a.cfg.Dispatcher.Config, a.logger.Named("dispatcher"))
}

// Close releases clients in reverse order of creation and flushes the logger.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
