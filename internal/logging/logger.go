// Package logging builds the logrus logger shared by every command, with an
// optional size-rotated log file next to the console output.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/patchgraph/internal/config"
)

// Options holds logger configuration
type Options struct {
	Level      string
	JSONFormat bool
	OutputFile string    // Path to log file (empty = console only)
	MaxSize    int64     // Max size in bytes before rotation (default: 10MB)
	MaxBackups int       // Number of old log files to keep (default: 3)
	Console    io.Writer // defaults to stdout
	Verbose    bool      // forces debug level
}

// OptionsFromConfig maps the log section of the configuration
func OptionsFromConfig(cfg config.LogConfig) Options {
	return Options{
		Level:      cfg.Level,
		JSONFormat: cfg.Format == "json",
		OutputFile: cfg.File,
		MaxSize:    int64(cfg.MaxSizeMB) * 1024 * 1024,
		MaxBackups: cfg.MaxFiles,
	}
}

// New creates a logger. The returned close function releases the log file
// and is safe to call when no file is open.
func New(opts Options) (*logrus.Logger, func() error, error) {
	if opts.MaxSize == 0 {
		opts.MaxSize = 10 * 1024 * 1024
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = 3
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}

	logger := logrus.New()
	closer := func() error { return nil }

	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, closer, err
	}
	if opts.Verbose {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	if opts.JSONFormat {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	writers := []io.Writer{opts.Console}
	if opts.OutputFile != "" {
		dir := filepath.Dir(opts.OutputFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, closer, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
		if err := rotateIfNeeded(opts.OutputFile, opts.MaxSize, opts.MaxBackups); err != nil {
			return nil, closer, fmt.Errorf("failed to rotate logs: %w", err)
		}

		file, err := os.OpenFile(opts.OutputFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, closer, fmt.Errorf("failed to open log file %s: %w", opts.OutputFile, err)
		}
		writers = append(writers, file)
		closer = file.Close
	}
	logger.SetOutput(io.MultiWriter(writers...))

	return logger, closer, nil
}

func parseLevel(level string) (logrus.Level, error) {
	if level == "" {
		return logrus.InfoLevel, nil
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

// rotateIfNeeded shifts path to path.1, path.1 to path.2 and so on once the
// file reaches maxSize. At most maxBackups rotated files are kept.
func rotateIfNeeded(path string, maxSize int64, maxBackups int) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	if info.Size() < maxSize {
		return nil
	}

	_ = os.Remove(fmt.Sprintf("%s.%d", path, maxBackups))
	for i := maxBackups - 1; i >= 1; i-- {
		oldPath := fmt.Sprintf("%s.%d", path, i)
		if _, err := os.Stat(oldPath); err == nil {
			_ = os.Rename(oldPath, fmt.Sprintf("%s.%d", path, i+1))
		}
	}

	if err := os.Rename(path, path+".1"); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}
	return nil
}

// Discard returns a logger that drops everything, for tests and library callers
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
