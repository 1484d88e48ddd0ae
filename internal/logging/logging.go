// Package logging builds the zap loggers used by relayd and the relay CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultMaxBytes caps a single log file before same-day rollover.
const DefaultMaxBytes = int64(300 * 1024 * 1024)

// Options selects the outputs of a logger.
type Options struct {
	// Name is attached to every entry, e.g. "relayd".
	Name string
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// File is the rotating JSON log. Empty disables file output; "-" discards.
	File     string
	MaxBytes int64
	// Console receives human-readable output. Nil means stderr; io.Discard
	// silences it.
	Console io.Writer
}

// New returns a logger and a function that flushes and closes its outputs.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCfg := encCfg
	consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(console), level),
	}
	closers := []io.Closer{}
	if file := strings.TrimSpace(opts.File); file != "" {
		maxBytes := opts.MaxBytes
		if maxBytes <= 0 {
			maxBytes = DefaultMaxBytes
		}
		sink, closer, err := NewRotatingWriter(file, maxBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("init rotating log: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, level))
		closers = append(closers, closer)
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if opts.Name != "" {
		logger = logger.Named(opts.Name)
	}
	closeFn := func() error {
		_ = logger.Sync()
		var first error
		for _, c := range closers {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return logger, closeFn, nil
}

// ParseLevel maps a config string to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}
