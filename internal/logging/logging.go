// Package logging builds the zap loggers used across bita.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Format selects the log encoder.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

// Options configures New.
type Options struct {
	// Level is a zap level name ("debug", "info", "warn", "error").
	// Empty means info.
	Level string

	// Format is FormatConsole or FormatJSON. Empty means console.
	Format Format

	// Writer receives log output. Nil means stderr.
	Writer io.Writer
}

// New returns a logger for opts.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		lvl, err := zapcore.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = lvl
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch opts.Format {
	case "", FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("invalid log format %q (valid: console, json)", opts.Format)
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(w), level)
	return zap.New(core, zap.AddCaller()), nil
}

// BadgerLogger adapts a zap logger to badger's Logger interface.
type BadgerLogger struct {
	s *zap.SugaredLogger
}

// NewBadgerLogger returns a badger logger writing through l under the "badger" name.
func NewBadgerLogger(l *zap.Logger) *BadgerLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &BadgerLogger{s: l.Named("badger").WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

// Badger terminates its messages with a newline.
func trim(format string) string { return strings.TrimSuffix(format, "\n") }

func (b *BadgerLogger) Errorf(format string, args ...any) { b.s.Errorf(trim(format), args...) }
func (b *BadgerLogger) Warningf(format string, args ...any) { b.s.Warnf(trim(format), args...) }

// Infof is demoted to debug; badger reports every table and compaction at info.
func (b *BadgerLogger) Infof(format string, args ...any) { b.s.Debugf(trim(format), args...) }
func (b *BadgerLogger) Debugf(format string, args ...any) { b.s.Debugf(trim(format), args...) }
