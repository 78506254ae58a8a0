// Package logger builds the zap logger shared by the mpisuite binaries and
// carries it through context so nested code logs through the same core.
package logger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the verbosity of the harness logger.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Parse maps a user supplied level string to a Level. The empty string
// means the default info level.
func Parse(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type contextKey struct{}

var loggerKey = contextKey{}

// New builds a console logger at the given level. Sweep output routinely
// ends up piped into files on a login node, so the encoder emits ISO8601
// timestamps and no color escapes.
func New(level Level) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.Encoding = "console"
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	return cfg.Build()
}

// Setup parses level and returns a context carrying a logger built at that
// level.
func Setup(ctx context.Context, level string) (context.Context, error) {
	lvl, err := Parse(level)
	if err != nil {
		return ctx, err
	}
	log, err := New(lvl)
	if err != nil {
		return ctx, fmt.Errorf("failed to build logger: %w", err)
	}
	return WithLogger(ctx, log), nil
}

// WithLogger returns a copy of ctx carrying log.
func WithLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger carried by ctx. A context without one
// gets a fresh info level logger so callers can always log.
func FromContext(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return log
	}
	log, err := New(LevelInfo)
	if err != nil {
		return zap.NewNop()
	}
	return log
}
