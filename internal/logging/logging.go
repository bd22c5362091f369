package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Rotation defaults.
const (
	DefaultMaxSizeMB = 10
	DefaultMaxFiles  = 5
)

// Config configures the file logger. Zero values take the defaults.
type Config struct {
	Level     string // debug, info, warn or error
	FilePath  string
	MaxSizeMB int
	MaxFiles  int

	// WriteToStderr tees log lines to stderr.
	WriteToStderr bool
}

// DefaultConfig logs at info level to DefaultLogPath.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		FilePath:  DefaultLogPath(),
		MaxSizeMB: DefaultMaxSizeMB,
		MaxFiles:  DefaultMaxFiles,
	}
}

func (c Config) withDefaults() Config {
	if c.FilePath == "" {
		c.FilePath = DefaultLogPath()
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = DefaultMaxSizeMB
	}
	if c.MaxFiles <= 0 {
		c.MaxFiles = DefaultMaxFiles
	}
	return c
}

// Setup opens the rotating log file and returns a JSON logger over it.
// cleanup flushes and closes the file.
func Setup(cfg Config) (logger *slog.Logger, cleanup func(), err error) {
	cfg = cfg.withDefaults()

	writer, err := NewRotatingWriter(cfg.FilePath, cfg.MaxSizeMB, cfg.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = writer
	if cfg.WriteToStderr {
		out = io.MultiWriter(writer, os.Stderr)
	}

	logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: LevelFromString(cfg.Level)}))
	cleanup = func() {
		_ = writer.Sync()
		_ = writer.Close()
	}
	return logger, cleanup, nil
}

// SetupDefault is Setup followed by slog.SetDefault.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	slog.Debug("logging_initialized", slog.String("level", cfg.Level))
	return cleanup, nil
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// LevelFromString maps a level name, in any case, to its slog.Level.
// Unknown names are info.
func LevelFromString(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}
