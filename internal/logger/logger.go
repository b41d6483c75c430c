// Package logger carries a zap.Logger on context.Context so every
// component can log with consistent fields without threading a logger
// through every call signature.
package logger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const loggerKey contextKey = "logger"

// PrepareLogger creates a new zap logger and stores it in the context.
//
// Usage:
//
//	ctx, log := logger.PrepareLogger(ctx)
//	log.Info("agent started")
func PrepareLogger(ctx context.Context) (context.Context, *zap.Logger) {
	log := NewLoggerFromEnv()
	return context.WithValue(ctx, loggerKey, log), log
}

// GetLogger retrieves the logger from the context. If none is found it
// returns a new production logger, so GetLogger never returns nil.
func GetLogger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return NewProductionLogger()
	}
	if log, ok := ctx.Value(loggerKey).(*zap.Logger); ok && log != nil {
		return log
	}
	return NewProductionLogger()
}

// WithFields returns a context carrying a sub-logger with the given fields.
func WithFields(ctx context.Context, fields ...zap.Field) context.Context {
	log := GetLogger(ctx).With(fields...)
	return context.WithValue(ctx, loggerKey, log)
}

// WithComponent tags the context logger with a "component" field.
func WithComponent(ctx context.Context, component string) context.Context {
	return WithFields(ctx, zap.String("component", component))
}

// WithLogger stores an existing logger in the context.
func WithLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// NewProductionLogger builds a JSON logger at INFO level, writing to stdout.
func NewProductionLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// NewDevelopmentLogger builds a human-readable colorized logger at DEBUG level.
func NewDevelopmentLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// NewLoggerFromEnv picks development or production logging based on
// FLEETWATCH_ENV.
func NewLoggerFromEnv() *zap.Logger {
	env := os.Getenv("FLEETWATCH_ENV")
	if env == "development" || env == "dev" {
		return NewDevelopmentLogger()
	}
	return NewProductionLogger()
}

// Sync flushes buffered log entries. Call before process exit.
func Sync(ctx context.Context) error {
	return GetLogger(ctx).Sync()
}

// Fatalf logs a fatal message with Sprintf formatting and exits.
func Fatalf(ctx context.Context, format string, args ...interface{}) {
	GetLogger(ctx).Fatal(fmt.Sprintf(format, args...))
}

// SQLAdapter adapts a zap logger to a func(...any) print signature, logging
// each call's arguments at debug level.
func SQLAdapter(log *zap.Logger) func(...any) {
	return func(args ...any) {
		log.Debug(fmt.Sprint(args...))
	}
}
