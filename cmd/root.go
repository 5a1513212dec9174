// Package cmd defines the CLI commands of the replay chat crawler.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/replay-chat-crawler/internal/app"
	"github.com/JakeFAU/replay-chat-crawler/internal/config"
	"github.com/JakeFAU/replay-chat-crawler/internal/crawler"
	"github.com/JakeFAU/replay-chat-crawler/internal/dispatcher"
	"github.com/JakeFAU/replay-chat-crawler/internal/logging"
	"github.com/JakeFAU/replay-chat-crawler/internal/worker"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// roleAnnotation selects the logger role for a command.
const roleAnnotation = "role"

// App is what commands need from the application container. Tests inject a
// fake through newApp.
type App interface {
	Close()
	Logger() *zap.Logger
	Config() config.Config
	Runner() (*worker.Runner, error)
	Dispatcher(source crawler.JobSource, configPath string) (*dispatcher.Dispatcher, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

// loadConfig is replaceable for tests that should not touch the environment.
var loadConfig = config.Load

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatcrawler",
		Short: "Captures replay live-chat transcripts.",
		Long: `chatcrawler replays recorded live broadcasts in a headless browser and
captures the chat panel into one CSV transcript per broadcast. The crawl
command reads the job list and runs each job in its own worker process.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			role := cmd.Annotations[roleAnnotation]
			if role == "" {
				role = logging.RoleCLI
			}
			logger, err := logging.New(cfg.Logging.Development, role)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); defaults and CHATCRAWLER_* env vars apply without one")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newCaptureCmd())
	cmd.AddCommand(newJobsCmd())

	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
