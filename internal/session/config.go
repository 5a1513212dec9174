package session

import (
	"fmt"
	"time"
)

// recommendedSpan is the upper bound for poll interval × playback rate.
// Beyond it a single poll can miss a large stretch of the broadcast because
// the chat panel only keeps the most recent lines rendered.
const recommendedSpan = 120 * time.Second

// Config holds the timing contract of a capture session.
type Config struct {
	PlaybackRate     float64       `mapstructure:"playback_rate"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	StartJitterMax   time.Duration `mapstructure:"start_jitter_max"`
	SettleMin        time.Duration `mapstructure:"settle_min"`
	SettleMax        time.Duration `mapstructure:"settle_max"`
	AdjustmentWait   time.Duration `mapstructure:"adjustment_wait"`
	MaxParseFailures int           `mapstructure:"max_parse_failures"`
}

// DefaultConfig mirrors the values the crawler has historically run with.
func DefaultConfig() Config {
	return Config{
		PlaybackRate:   3.3,
		PollInterval:   30 * time.Second,
		StartJitterMax: 50 * time.Second,
		SettleMin:      5 * time.Second,
		SettleMax:      8 * time.Second,
		AdjustmentWait: 600 * time.Millisecond,
	}
}

// Validate checks for obviously bad timing combinations.
func (c Config) Validate() error {
	if c.PlaybackRate <= 0 {
		return fmt.Errorf("session.playback_rate must be > 0")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("session.poll_interval must be > 0")
	}
	if c.StartJitterMax < 0 || c.AdjustmentWait < 0 {
		return fmt.Errorf("session waits must be >= 0")
	}
	if c.SettleMin < 0 || c.SettleMax < c.SettleMin {
		return fmt.Errorf("session.settle_min must be >= 0 and <= session.settle_max")
	}
	if c.MaxParseFailures < 0 {
		return fmt.Errorf("session.max_parse_failures must be >= 0")
	}
	return nil
}

// PlaybackSpan is the stretch of broadcast time that elapses between polls.
func (c Config) PlaybackSpan() time.Duration {
	return time.Duration(float64(c.PollInterval) * c.PlaybackRate)
}

// ExceedsRecommendation reports whether polls are spaced too far apart in
// broadcast time.
func (c Config) ExceedsRecommendation() bool {
	return c.PlaybackSpan() >= recommendedSpan
}
