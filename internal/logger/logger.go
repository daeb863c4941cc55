package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var level = zap.NewAtomicLevelAt(zapcore.DebugLevel)

// Logger is a wrapper around zap.Logger
// we can configure it as we want
func zapLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.Level = level
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

var Logger = zapLogger()

// SetLevel changes the level of Logger at runtime, e.g. "info" or "warn".
func SetLevel(name string) error {
	parsed, err := zapcore.ParseLevel(name)
	if err != nil {
		return err
	}
	level.SetLevel(parsed)
	return nil
}
