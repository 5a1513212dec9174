// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/replay-chat-crawler/internal/dispatcher"
	"github.com/JakeFAU/replay-chat-crawler/internal/export"
	"github.com/JakeFAU/replay-chat-crawler/internal/jobsource"
	"github.com/JakeFAU/replay-chat-crawler/internal/session"
	"github.com/JakeFAU/replay-chat-crawler/internal/storage/gcs"
	"github.com/JakeFAU/replay-chat-crawler/internal/storage/postgres"
	"github.com/JakeFAU/replay-chat-crawler/internal/surface/headless"
	"github.com/JakeFAU/replay-chat-crawler/internal/worker"
)

// EnvPrefix namespaces environment overrides, e.g. CHATCRAWLER_SESSION_PLAYBACK_RATE.
const EnvPrefix = "CHATCRAWLER"

// Launcher modes.
const (
	LauncherProcess   = "process"
	LauncherInProcess = "inprocess"
)

// Config captures all crawler configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Browser    headless.Config  `mapstructure:"browser"`
	Session    session.Config   `mapstructure:"session"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Output     export.CSVConfig `mapstructure:"output"`
	Export     ExportConfig     `mapstructure:"export"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// RetryConfig bounds capture attempts per job.
type RetryConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
}

// DispatcherConfig adds the launcher choice to the admission settings.
type DispatcherConfig struct {
	dispatcher.Config `mapstructure:",squash"`
	Launcher          string `mapstructure:"launcher"`
}

// JobsConfig locates the job list.
type JobsConfig struct {
	Path       string `mapstructure:"path"`
	FilePrefix string `mapstructure:"file_prefix"`
}

// ExportConfig enables optional mirrors. A mirror is enabled when its
// destination is set.
type ExportConfig struct {
	GCS      gcs.Config      `mapstructure:"gcs"`
	Postgres postgres.Config `mapstructure:"postgres"`
	PubSub   PubSubConfig    `mapstructure:"pubsub"`
}

// PubSubConfig holds the completion event destination.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig controls the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from .env, the optional file at path and the
// environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	sess := session.DefaultConfig()
	sel := headless.DefaultSelectors()

	v.SetDefault("logging.development", true)

	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.navigation_timeout", 45*time.Second)
	v.SetDefault("browser.action_timeout", 10*time.Second)
	v.SetDefault("browser.menu_wait", 500*time.Millisecond)
	v.SetDefault("browser.selectors.chat_frame", sel.ChatFrame)
	v.SetDefault("browser.selectors.chat_item", sel.ChatItem)
	v.SetDefault("browser.selectors.chat_content", sel.ChatContent)
	v.SetDefault("browser.selectors.timestamp", sel.Timestamp)
	v.SetDefault("browser.selectors.author_name", sel.AuthorName)
	v.SetDefault("browser.selectors.message", sel.Message)
	v.SetDefault("browser.selectors.avatar", sel.Avatar)
	v.SetDefault("browser.selectors.mute_button", sel.MuteButton)
	v.SetDefault("browser.selectors.autoplay_toggle", sel.AutoplayToggle)
	v.SetDefault("browser.selectors.play_button", sel.PlayButton)
	v.SetDefault("browser.selectors.overflow", sel.Overflow)
	v.SetDefault("browser.selectors.timestamp_menu_item", sel.TimestampMenuItem)
	v.SetDefault("browser.selectors.show_more", sel.ShowMore)
	v.SetDefault("browser.selectors.replay_titles", sel.ReplayTitles)

	v.SetDefault("session.playback_rate", sess.PlaybackRate)
	v.SetDefault("session.poll_interval", sess.PollInterval)
	v.SetDefault("session.start_jitter_max", sess.StartJitterMax)
	v.SetDefault("session.settle_min", sess.SettleMin)
	v.SetDefault("session.settle_max", sess.SettleMax)
	v.SetDefault("session.adjustment_wait", sess.AdjustmentWait)
	v.SetDefault("session.max_parse_failures", sess.MaxParseFailures)

	v.SetDefault("retry.max_attempts", worker.DefaultMaxAttempts)

	v.SetDefault("dispatcher.capacity", 4)
	v.SetDefault("dispatcher.resume_interval", time.Minute)
	v.SetDefault("dispatcher.admission_qps", 0.0)
	v.SetDefault("dispatcher.launcher", LauncherProcess)

	v.SetDefault("jobs.path", "data")
	v.SetDefault("jobs.file_prefix", jobsource.DefaultFilePrefix)

	v.SetDefault("output.dir", "chat")
	v.SetDefault("output.prefix", export.DefaultPrefix)

	v.SetDefault("export.gcs.bucket", "")
	v.SetDefault("export.gcs.prefix", "chat")
	v.SetDefault("export.postgres.dsn", "")
	v.SetDefault("export.postgres.table", postgres.DefaultTable)
	v.SetDefault("export.postgres.max_conns", 4)
	v.SetDefault("export.pubsub.project_id", "")
	v.SetDefault("export.pubsub.topic", "")

	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be > 0")
	}
	if err := c.Dispatcher.Config.Validate(); err != nil {
		return err
	}
	switch c.Dispatcher.Launcher {
	case LauncherProcess, LauncherInProcess:
	default:
		return fmt.Errorf("dispatcher.launcher must be %q or %q", LauncherProcess, LauncherInProcess)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		return fmt.Errorf("output.dir is required")
	}
	if c.Export.PubSub.Topic != "" && c.Export.PubSub.ProjectID == "" {
		return fmt.Errorf("export.pubsub.project_id is required when export.pubsub.topic is set")
	}
	if c.Browser.NavigationTimeout < 0 || c.Browser.ActionTimeout < 0 {
		return fmt.Errorf("browser timeouts must be >= 0")
	}
	return nil
}

// WorkerConfig returns the retry runner settings.
func (c Config) WorkerConfig() worker.Config {
	return worker.Config{MaxAttempts: c.Retry.MaxAttempts, Topic: c.Export.PubSub.Topic}
}
