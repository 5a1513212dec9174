// Package dispatcher admits jobs into isolated workers under a coarse
// capacity throttle.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
	"github.com/JakeFAU/replay-chat-crawler/internal/metrics"
)

// Handle tracks one running worker.
type Handle interface {
	Job() crawler.CrawlJob
	// Alive reports whether the worker is still running. It never blocks.
	Alive() bool
	// Wait blocks until the worker exits and returns its failure, if any.
	Wait() error
}

// Launcher starts one isolated worker for a job.
type Launcher interface {
	Launch(ctx context.Context, job crawler.CrawlJob) (Handle, error)
}

// Config controls admission.
type Config struct {
	Capacity       int           `mapstructure:"capacity"`
	ResumeInterval time.Duration `mapstructure:"resume_interval"`
	// AdmissionQPS bounds how fast workers are launched; 0 disables pacing.
	AdmissionQPS float64 `mapstructure:"admission_qps"`
}

// Validate checks the admission settings.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("dispatcher.capacity must be > 0")
	}
	if c.ResumeInterval <= 0 {
		return fmt.Errorf("dispatcher.resume_interval must be > 0")
	}
	if c.AdmissionQPS < 0 {
		return fmt.Errorf("dispatcher.admission_qps must be >= 0")
	}
	return nil
}

// Summary reports what a Run did.
type Summary struct {
	Admitted       int
	Completed      int
	InvalidJobs    int
	LaunchFailures int
	WorkerFailures int
	PeakTracked    int
}

// Dispatcher reads jobs and launches a worker per job. When the tracked
// set reaches capacity it sleeps and sweeps finished workers before
// admitting more. The sweep is periodic, so a worker that exits right
// after a check keeps its slot until the next one.
type Dispatcher struct {
	source   crawler.JobSource
	launcher Launcher
	clock    crawler.Clock
	cfg      Config
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(source crawler.JobSource, launcher Launcher, clock crawler.Clock, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if source == nil || launcher == nil || clock == nil {
		return nil, fmt.Errorf("job source, launcher and clock are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		source:   source,
		launcher: launcher,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
	if cfg.AdmissionQPS > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.AdmissionQPS), 1)
	}
	return d, nil
}

// Run admits every job from the source and waits for all workers. An
// invalid job is counted and skipped like a launch failure. Any other job
// source error stops admission; the error is returned after the tracked
// workers finish. Worker and launch failures are only counted.
func (d *Dispatcher) Run(ctx context.Context) (Summary, error) {
	var (
		summary Summary
		tracked []Handle
		runErr  error
	)
	d.logger.Info("dispatcher start", zap.Int("capacity", d.cfg.Capacity), zap.Duration("resume_interval", d.cfg.ResumeInterval))

admit:
	for {
		job, err := d.source.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if crawler.IsInvalidJob(err) {
			summary.InvalidJobs++
			metrics.ObserveWorker("invalid_job")
			d.logger.Error("skipping invalid job", zap.Error(err))
			continue
		}
		if err != nil {
			runErr = fmt.Errorf("read job: %w", err)
			d.logger.Error("job source failed; no further jobs admitted", zap.Error(err))
			break
		}
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				runErr = err
				break
			}
		}

		h, err := d.launcher.Launch(ctx, job)
		if err != nil {
			summary.LaunchFailures++
			metrics.ObserveWorker("launch_failed")
			d.logger.Error("launch worker failed", zap.String("title", job.Title), zap.Error(err))
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break
			}
			continue
		}
		summary.Admitted++
		tracked = append(tracked, h)
		if len(tracked) > summary.PeakTracked {
			summary.PeakTracked = len(tracked)
		}
		metrics.SetTrackedWorkers(len(tracked))
		d.logger.Info("worker admitted", zap.String("title", job.Title), zap.Int("tracked", len(tracked)))

		for len(tracked) >= d.cfg.Capacity {
			if err := d.clock.Sleep(ctx, d.cfg.ResumeInterval); err != nil {
				runErr = err
				break admit
			}
			tracked = d.sweep(tracked, &summary)
		}
	}

	for _, h := range tracked {
		d.finish(h, h.Wait(), &summary)
	}
	metrics.SetTrackedWorkers(0)
	d.logger.Info("dispatcher done",
		zap.Int("admitted", summary.Admitted),
		zap.Int("completed", summary.Completed),
		zap.Int("invalid_jobs", summary.InvalidJobs),
		zap.Int("launch_failures", summary.LaunchFailures),
		zap.Int("worker_failures", summary.WorkerFailures),
		zap.Int("peak_tracked", summary.PeakTracked),
	)
	return summary, runErr
}

// sweep drops finished workers from the tracked set.
func (d *Dispatcher) sweep(tracked []Handle, summary *Summary) []Handle {
	alive := tracked[:0]
	for _, h := range tracked {
		if h.Alive() {
			alive = append(alive, h)
			continue
		}
		d.finish(h, h.Wait(), summary)
	}
	for i := len(alive); i < len(tracked); i++ {
		tracked[i] = nil
	}
	metrics.SetTrackedWorkers(len(alive))
	return alive
}

func (d *Dispatcher) finish(h Handle, err error, summary *Summary) {
	summary.Completed++
	if err != nil {
		summary.WorkerFailures++
		metrics.ObserveWorker("failed")
		d.logger.Warn("worker failed", zap.String("title", h.Job().Title), zap.Error(err))
		return
	}
	metrics.ObserveWorker("succeeded")
	d.logger.Debug("worker finished", zap.String("title", h.Job().Title))
}
