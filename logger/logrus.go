package logger

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures a LogrusLogger.
type Options struct {
	Level string
	// Output receives every entry; nil means stdout.
	Output io.Writer

	// File enables a rotating file sink in addition to stdout. Empty disables it.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LogrusLogger wraps a logrus logger to implement the Logger interface.
type LogrusLogger struct {
	logger *logrus.Logger
	entry  *logrus.Entry
	closer io.Closer
}

// NewLogrusLogger creates a new LogrusLogger with JSON formatter writing to stdout.
func NewLogrusLogger(level string) *LogrusLogger {
	return NewLogrusLoggerWithOptions(Options{Level: level})
}

// NewLogrusLoggerWithOptions creates a LogrusLogger with JSON formatter. When opts.File is
// set, entries are also written to a size-rotated file.
func NewLogrusLoggerWithOptions(opts Options) *LogrusLogger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}
	var closer io.Closer
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    orDefault(opts.MaxSizeMB, 100),
			MaxBackups: orDefault(opts.MaxBackups, 5),
			MaxAge:     orDefault(opts.MaxAgeDays, 14),
			Compress:   true,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator
	}
	logger.SetOutput(out)

	logLevel, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	return &LogrusLogger{
		logger: logger,
		entry:  logrus.NewEntry(logger),
		closer: closer,
	}
}

// Close flushes and closes the rotating file sink, if any.
func (l *LogrusLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Debug logs a debug-level message.
func (l *LogrusLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.withContext(ctx, fields).Debug(msg)
}

// Info logs an info-level message.
func (l *LogrusLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	l.withContext(ctx, fields).Info(msg)
}

// Warn logs a warning-level message.
func (l *LogrusLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	l.withContext(ctx, fields).Warn(msg)
}

// Error logs an error-level message.
func (l *LogrusLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	l.withContext(ctx, fields).Error(msg)
}

// WithField returns a new logger with the given field added.
func (l *LogrusLogger) WithField(key string, value interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithField(key, value),
		closer: l.closer,
	}
}

// WithFields returns a new logger with the given fields added.
func (l *LogrusLogger) WithFields(fields map[string]interface{}) Logger {
	return &LogrusLogger{
		logger: l.logger,
		entry:  l.entry.WithFields(fields),
		closer: l.closer,
	}
}

func (l *LogrusLogger) withContext(ctx context.Context, fields map[string]interface{}) *logrus.Entry {
	entry := l.entry
	if id, ok := SessionIDFrom(ctx); ok {
		entry = entry.WithField("session_id", id)
	}
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	return entry
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
