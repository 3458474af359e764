// Package logging builds the process logger.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	globalLogger = zap.NewNop()
	globalMu     sync.RWMutex
)

// Options configure New.
type Options struct {
	Level string
	// File, when set, receives the log through a rotating writer instead of stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// ParseLevel maps a level name to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// EncoderConfig is the production encoder with an ISO8601 "timestamp" key.
func EncoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	return enc
}

// New creates a JSON logger. Without a file it writes to stderr.
func New(opts Options) (*zap.Logger, error) {
	if opts.File == "" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig = EncoderConfig()
		cfg.Level = zap.NewAtomicLevelAt(ParseLevel(opts.Level))
		return cfg.Build()
	}

	w := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	if w.MaxSize <= 0 {
		w.MaxSize = 10
	}
	if w.MaxBackups <= 0 {
		w.MaxBackups = 3
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(EncoderConfig()),
		zapcore.AddSync(w),
		ParseLevel(opts.Level),
	)
	return zap.New(core, zap.AddCaller(), zap.ErrorOutput(zapcore.Lock(os.Stderr))), nil
}

// Global returns the process logger. It is a no-op logger until SetGlobal is called.
func Global() *zap.Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetGlobal sets the process logger.
func SetGlobal(l *zap.Logger) {
	globalMu.Lock()
	globalLogger = l
	globalMu.Unlock()
}

// Sync flushes any buffered log entries.
func Sync() {
	_ = Global().Sync()
}
