// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Nova-Search/api/internal/config"
)

// Config represents the logging configuration
type Config struct {
	Level      slog.Level
	JSON       bool
	FilePath   string
	MaxSize    int64 // MB
	MaxBackups int
	Console    io.Writer // nil disables console output
}

// FromConfig translates the log section of the application config
func FromConfig(c config.LogConfig) Config {
	return Config{
		Level:      ParseLevel(c.Level),
		JSON:       !strings.EqualFold(c.Format, "text"),
		FilePath:   c.File,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		Console:    os.Stderr,
	}
}

// ParseLevel converts a string log level to slog.Level, defaulting to info
func ParseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// NewLogger creates a logger writing to the console and, when FilePath is
// set, to a size-rotated file. The returned closer releases the file.
func NewLogger(cfg Config) (*slog.Logger, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.Console != nil {
		writers = append(writers, cfg.Console)
	}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, nil, err
		}
		fw, err := NewRotatingFileWriter(cfg.FilePath, cfg.MaxSize*1024*1024, cfg.MaxBackups)
		if err != nil {
			return nil, nil, err
		}
		writers = append(writers, fw)
		closer = fw
	}

	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	out := writers[0]
	if len(writers) > 1 {
		out = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closer, nil
}

// SetDefault installs the configured logger as slog's default
func SetDefault(cfg Config) (io.Closer, error) {
	logger, closer, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
