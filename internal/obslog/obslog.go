// Package obslog builds the structured logger used across this module,
// following the same zap-based pattern as apex-build-platform's
// internal/logging package: production JSON encoding by default, a more
// readable development encoding when explicitly requested.
package obslog

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// Init builds (once) and returns the package-level default logger. Safe to
// call multiple times; only the first call's configuration sticks.
func Init() *zap.Logger {
	once.Do(func() {
		var cfg zap.Config

		if os.Getenv("RUNNER_ENV") == "development" {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		} else {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		}

		built, err := cfg.Build()
		if err != nil {
			built = zap.NewNop()
		}

		logger = built
	})

	return logger
}

// L returns the package-level default logger, initializing it if necessary.
func L() *zap.Logger {
	if logger == nil {
		return Init()
	}

	return logger
}
