// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Process roles attached to every log line, so interleaved output from the
// dispatcher and its worker processes can be told apart.
const (
	RoleDispatcher = "dispatcher"
	RoleWorker     = "worker"
	RoleCLI        = "cli"
)

// New builds a zap.Logger configured for development or production. Every
// entry carries the process role and pid.
func New(development bool, role string) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.DisableStacktrace = false
		cfg.OutputPaths = []string{"stderr"}
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.InitialFields = map[string]any{"pid": os.Getpid()}
	if role != "" {
		cfg.InitialFields["role"] = role
	}
	logger, err := cfg.Build()
	if err != nil {
		mode := "prod"
		if development {
			mode = "dev"
		}
		return nil, fmt.Errorf("build %s logger: %w", mode, err)
	}
	return logger, nil
}
