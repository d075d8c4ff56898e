// Package zaplog adapts go.uber.org/zap to the Logger interfaces accepted by
// packages ota and link.
//
// Example:
//
//	log, err := zaplog.New(zaplog.Config{Level: "debug", Format: "console"})
//	if err != nil {
//	    return err
//	}
//	defer log.Sync()
//
//	up := ota.New(mgr, ota.WithLogger(log))
package zaplog

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config selects the level, format and destination of a Logger.
type Config struct {
	// Level is one of debug, info, warn, error (default info)
	Level string

	// Format is json or console (default json)
	Format string

	// Output defaults to os.Stderr
	Output io.Writer
}

// Logger wraps a sugared zap logger. It satisfies ota.Logger and link.Logger.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger from cfg.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		NameKey:     "logger",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeName:  zapcore.FullNameEncoder,
	}

	var encoder zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", FormatJSON:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case FormatConsole:
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		return nil, fmt.Errorf("unknown log format %q: expected %s or %s", cfg.Format, FormatJSON, FormatConsole)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	return Wrap(zap.New(core)), nil
}

// Wrap adapts an existing zap logger.
func Wrap(l *zap.Logger) *Logger {
	return &Logger{sugar: l.Sugar()}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return Wrap(zap.NewNop())
}

// ParseLevel maps a level name to a zap level. An empty name means info.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.InfoLevel, nil
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(name))); err != nil {
		return 0, fmt.Errorf("unknown log level %q: %w", name, err)
	}
	return level, nil
}

// Named returns a child logger whose entries carry the given name.
func (l *Logger) Named(name string) *Logger {
	return &Logger{sugar: l.sugar.Named(name)}
}

// With returns a child logger with the key-value pairs attached to every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}

// Debug logs a debug message with optional key-value pairs.
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs an info message with optional key-value pairs.
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message with optional key-value pairs.
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message with optional key-value pairs.
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}
