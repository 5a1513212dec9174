// Package headless drives a replay page through headless Chrome via chromedp.
package headless

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
)

// Factory launches one browser per Acquire call so no state is shared
// between capture sessions.
type Factory struct {
	cfg Config
}

// NewFactory returns a Factory with defaults applied to cfg.
func NewFactory(cfg Config) *Factory {
	return &Factory{cfg: cfg.withDefaults()}
}

func (f *Factory) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption(nil), chromedp.DefaultExecAllocatorOptions[:]...)
	if f.cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("enable-automation", false),
	)
	if f.cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if f.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(f.cfg.ExecPath))
	}
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}
	return opts
}

// Acquire starts a browser and returns a Surface bound to it. The browser
// lives until Close, independent of ctx.
func (f *Factory) Acquire(ctx context.Context) (crawler.Surface, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), f.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Surface{
		cfg:           f.cfg,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}
	if err := s.start(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	warmup := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
	if err := s.run(ctx, f.cfg.NavigationTimeout, warmup); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return s, nil
}

// Surface is one browser tab showing a replay page.
type Surface struct {
	cfg           Config
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	closeOnce     sync.Once
}

// start launches the browser process. The first Run on a chromedp context
// allocates the browser with that context, so it must not carry a timeout
// or the browser dies with it. ctx only bounds how long the caller waits.
func (s *Surface) start(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- chromedp.Run(s.browserCtx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.NavigationTimeout):
		return fmt.Errorf("browser did not start within %s", s.cfg.NavigationTimeout)
	}
}

// run executes actions against the tab, bounded by timeout and by ctx.
func (s *Surface) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	taskCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()

	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the document body.
func (s *Surface) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *Surface) click(ctx context.Context, sel string) error {
	return s.run(ctx, s.cfg.ActionTimeout, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
}

// Mute clicks the player's mute button.
func (s *Surface) Mute(ctx context.Context) error {
	return s.click(ctx, s.cfg.Selectors.MuteButton)
}

// DisableAutoplay clicks the autoplay toggle.
func (s *Surface) DisableAutoplay(ctx context.Context) error {
	return s.click(ctx, s.cfg.Selectors.AutoplayToggle)
}

// SetPlaybackRate sets the video element's playback rate.
func (s *Surface) SetPlaybackRate(ctx context.Context, rate float64) error {
	var got float64
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(playbackRateScript(rate), &got)); err != nil {
		return err
	}
	if got < 0 {
		return fmt.Errorf("no video element on page")
	}
	return nil
}

// EnterChat waits for the chat frame and verifies its document is reachable.
func (s *Surface) EnterChat(ctx context.Context) error {
	var ready bool
	err := s.run(ctx, s.cfg.NavigationTimeout,
		chromedp.WaitReady(s.cfg.Selectors.ChatFrame, chromedp.ByQuery),
		chromedp.Poll(chatFrameReadyScript(s.cfg.Selectors), &ready, chromedp.WithPollingInterval(250*time.Millisecond)),
	)
	if err != nil {
		return fmt.Errorf("chat frame %s: %w", s.cfg.Selectors.ChatFrame, err)
	}
	return nil
}

func (s *Surface) frameClick(ctx context.Context, target string, onlyVisible bool) (bool, error) {
	var clicked bool
	err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(frameClickScript(s.cfg.Selectors, target, onlyVisible), &clicked))
	return clicked, err
}

// ShowTimestamps opens the chat overflow menu and enables timestamps.
func (s *Surface) ShowTimestamps(ctx context.Context) error {
	clicked, err := s.frameClick(ctx, s.cfg.Selectors.Overflow, false)
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("overflow menu %s not found", s.cfg.Selectors.Overflow)
	}
	if err := s.run(ctx, s.cfg.MenuWait+s.cfg.ActionTimeout, chromedp.Sleep(s.cfg.MenuWait)); err != nil {
		return err
	}
	clicked, err = s.frameClick(ctx, s.cfg.Selectors.TimestampMenuItem, false)
	if err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("timestamp menu item %s not found", s.cfg.Selectors.TimestampMenuItem)
	}
	return nil
}

// ExpandChat clicks "show more" when it is displayed.
func (s *Surface) ExpandChat(ctx context.Context) error {
	_, err := s.frameClick(ctx, s.cfg.Selectors.ShowMore, true)
	return err
}

// PlaybackEnded reports whether the video finished or the play button
// offers a replay.
func (s *Surface) PlaybackEnded(ctx context.Context) (bool, error) {
	var ended bool
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(playbackEndedScript(s.cfg.Selectors), &ended)); err != nil {
		return false, err
	}
	return ended, nil
}

// TogglePlayback clicks the play/pause button.
func (s *Surface) TogglePlayback(ctx context.Context) error {
	return s.click(ctx, s.cfg.Selectors.PlayButton)
}

// ChatElements snapshots every rendered chat item in the chat frame.
func (s *Surface) ChatElements(ctx context.Context) ([]crawler.ChatElement, error) {
	var raw *string
	if err := s.run(ctx, s.cfg.ActionTimeout, chromedp.Evaluate(chatElementsScript(s.cfg.Selectors), &raw)); err != nil {
		return nil, err
	}
	return decodeElements(raw)
}

// Close tears down the tab and the browser process. It is safe to call
// more than once.
func (s *Surface) Close() error {
	s.closeOnce.Do(func() {
		if s.browserCancel != nil {
			s.browserCancel()
		}
		if s.allocCancel != nil {
			s.allocCancel()
		}
	})
	return nil
}

// forwardCancel cancels the task when parent is done. The returned func
// stops the forwarding goroutine.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
