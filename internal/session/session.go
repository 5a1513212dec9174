// Package session drives one broadcast through the pause-poll-resume
// capture cycle against a browser automation surface.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
	"github.com/JakeFAU/replay-chat-crawler/internal/metrics"
)

// Adjustment action names used in logs and metrics.
const (
	ActionMute            = "mute"
	ActionDisableAutoplay = "disable_autoplay"
	ActionPlaybackRate    = "playback_rate"
	ActionShowTimestamps  = "show_timestamps"
	ActionExpandChat      = "expand_chat"
	ActionPause           = "pause"
	ActionResume          = "resume"
)

// Session is a single capture attempt for one job. It is not reusable:
// Run may be called once.
type Session struct {
	job      crawler.CrawlJob
	runID    string
	attempt  int
	cfg      Config
	surfaces crawler.SurfaceFactory
	clock    crawler.Clock
	random   func() float64
	logger   *zap.Logger

	state         crawler.SessionState
	surface       crawler.Surface
	store         *crawler.DedupStore
	parseFailures int
}

// New constructs a Session in the INIT state.
func New(
	job crawler.CrawlJob,
	runID string,
	attempt int,
	surfaces crawler.SurfaceFactory,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		job:      job,
		runID:    runID,
		attempt:  attempt,
		cfg:      cfg,
		surfaces: surfaces,
		clock:    clock,
		random:   rand.Float64,
		logger: logger.With(
			zap.String("run_id", runID),
			zap.String("title", job.Title),
			zap.String("duration", job.ScheduledDuration),
			zap.Int("attempt", attempt),
		),
		state: crawler.StateInit,
		store: crawler.NewDedupStore(),
	}
}

// State reports the current lifecycle state.
func (s *Session) State() crawler.SessionState {
	return s.state
}

// Run executes the session to completion. On success the records are
// returned in first-seen order (possibly empty). On failure the surface is
// released, accumulated records are discarded and the error is returned.
func (s *Session) Run(ctx context.Context) ([]crawler.MessageRecord, error) {
	if s.state != crawler.StateInit {
		return nil, fmt.Errorf("session %s already ran (state %s)", s.runID, s.state)
	}
	defer s.release()

	records, err := s.run(ctx)
	if err != nil {
		s.release()
		s.store = nil
		s.state = crawler.StateFailed
		metrics.ObserveSession("failed")
		s.logger.Warn("capture session failed", zap.Error(err))
		return nil, err
	}
	metrics.ObserveSession("closed")
	return records, nil
}

func (s *Session) run(ctx context.Context) ([]crawler.MessageRecord, error) {
	s.state = crawler.StateStarting
	seconds, err := crawler.ParseDuration(s.job.ScheduledDuration)
	if err != nil {
		return nil, fmt.Errorf("scheduled duration: %w", err)
	}
	epochs := crawler.EpochCount(seconds, s.cfg.PlaybackRate, s.cfg.PollInterval.Seconds())

	startWait := s.startJitter()
	settleWait := s.settleWait()
	s.logger.Info("capture session begin",
		zap.Int("epochs", epochs),
		zap.Duration("start_wait", startWait),
		zap.Duration("settle_wait", settleWait),
	)
	if err := s.clock.Sleep(ctx, startWait); err != nil {
		return nil, err
	}

	surface, err := s.surfaces.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire surface: %w", err)
	}
	s.surface = surface

	if err := surface.Navigate(ctx, s.job.SourceURL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := s.clock.Sleep(ctx, settleWait); err != nil {
		return nil, err
	}

	if err := s.adjust(ctx, ActionMute, surface.Mute); err != nil {
		return nil, err
	}
	if err := s.adjust(ctx, ActionDisableAutoplay, surface.DisableAutoplay); err != nil {
		return nil, err
	}
	if err := s.adjust(ctx, ActionPlaybackRate, func(ctx context.Context) error {
		return surface.SetPlaybackRate(ctx, s.cfg.PlaybackRate)
	}); err != nil {
		return nil, err
	}

	if err := surface.EnterChat(ctx); err != nil {
		return nil, fmt.Errorf("enter chat: %w", err)
	}
	if err := s.adjust(ctx, ActionShowTimestamps, surface.ShowTimestamps); err != nil {
		return nil, err
	}
	if err := s.adjust(ctx, ActionExpandChat, surface.ExpandChat); err != nil {
		return nil, err
	}
	s.state = crawler.StatePolling

	for epoch := 1; epoch <= epochs; epoch++ {
		if err := s.clock.Sleep(ctx, s.cfg.PollInterval); err != nil {
			return nil, err
		}
		if err := s.poll(ctx, epoch, epochs); err != nil {
			return nil, err
		}
	}

	records := s.store.Records()
	s.release()
	s.state = crawler.StateClosed
	s.logger.Info("capture session end", zap.Int("records", len(records)))
	return records, nil
}

// poll runs one pause-scan-resume cycle.
func (s *Session) poll(ctx context.Context, epoch, epochs int) error {
	s.state = crawler.StatePausedForScan
	if err := s.togglePlayback(ctx, ActionPause); err != nil {
		return err
	}

	start := s.clock.Now()
	elements, err := s.surface.ChatElements(ctx)
	if err != nil {
		return &crawler.SessionFatalError{Epoch: epoch, Err: fmt.Errorf("enumerate chat elements: %w", err)}
	}
	added := 0
	for i, el := range elements {
		rec, err := el.Parse()
		if err != nil {
			s.parseFailures++
			metrics.ObserveParseFailure()
			if s.parseFailures > s.cfg.MaxParseFailures {
				return &crawler.SessionFatalError{Epoch: epoch, Err: fmt.Errorf("element %d: %w", i, err)}
			}
			s.logger.Warn("skipping unparsable chat element",
				zap.Int("epoch", epoch),
				zap.Int("element", i),
				zap.Int("parse_failures", s.parseFailures),
				zap.Error(err),
			)
			continue
		}
		if s.store.Add(rec) {
			added++
		}
	}
	scan := s.clock.Now().Sub(start)
	metrics.ObserveEpoch(len(elements), added, scan)
	s.logger.Info("epoch scanned",
		zap.Int("epoch", epoch),
		zap.Int("epochs", epochs),
		zap.Int("chats", s.store.Len()),
		zap.Int("new", added),
		zap.Duration("scan", scan),
	)

	s.state = crawler.StatePolling
	return s.togglePlayback(ctx, ActionResume)
}

// togglePlayback pauses or resumes the player unless the broadcast has
// already ended. Failures are tolerated like any other adjustment.
func (s *Session) togglePlayback(ctx context.Context, action string) error {
	return s.adjust(ctx, action, func(ctx context.Context) error {
		ended, err := s.surface.PlaybackEnded(ctx)
		if err != nil {
			return fmt.Errorf("check playback ended: %w", err)
		}
		if ended {
			return nil
		}
		return s.surface.TogglePlayback(ctx)
	})
}

// adjust runs a presentation adjustment bracketed by the configured wait.
// A failing action is logged and swallowed; only context cancellation is
// returned.
func (s *Session) adjust(ctx context.Context, action string, fn func(context.Context) error) error {
	if err := s.clock.Sleep(ctx, s.cfg.AdjustmentWait); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(ctxErr, err)
		}
		adjErr := &crawler.TransientAdjustmentError{Action: action, Err: err}
		metrics.ObserveAdjustmentFailure(action)
		s.logger.Warn("adjustment failed; continuing", zap.String("action", action), zap.Error(adjErr))
		return nil
	}
	return s.clock.Sleep(ctx, s.cfg.AdjustmentWait)
}

func (s *Session) release() {
	if s.surface == nil {
		return
	}
	if err := s.surface.Close(); err != nil {
		s.logger.Warn("release surface", zap.Error(err))
	}
	s.surface = nil
}

// startJitter spreads session starts so many workers launched together do
// not hit the site at once. The product of two uniforms skews towards 0.
func (s *Session) startJitter() time.Duration {
	if s.cfg.StartJitterMax <= 0 {
		return 0
	}
	return time.Duration(float64(s.cfg.StartJitterMax) * s.random() * s.random())
}

func (s *Session) settleWait() time.Duration {
	span := s.cfg.SettleMax - s.cfg.SettleMin
	if span <= 0 {
		return s.cfg.SettleMin
	}
	return s.cfg.SettleMin + time.Duration(float64(span)*s.random())
}
