// Package logging builds the zap loggers used by the server and the SDK.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger, or a colored console logger when env
// is "development" or "dev". debug lowers the level to Debug.
func New(env string, debug bool) *zap.Logger {
	var cfg zap.Config
	if env == "development" || env == "dev" {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// SDK returns the diagnostic logger for an SDK instance. It is a no-op unless
// debug is set. The returned logger writes straight to stderr and is never
// routed through console interception.
func SDK(debug bool) *zap.Logger {
	if !debug {
		return zap.NewNop()
	}
	return New("development", true).Named("better-analytics")
}
