package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger builds the process logger: human-readable text on stdout and,
// when logFile is set, JSON lines appended to that file as well.
// The returned cleanup closes the file.
func NewLogger(level slog.Level, logFile string) (*slog.Logger, func() error, error) {
	if logFile == "" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})), func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("config: creating log directory: %w", err)
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("config: opening log file: %w", err)
	}

	return NewLoggerWithWriters(os.Stdout, file, level), file.Close, nil
}

// NewLoggerWithWriters fans out to a text handler on console and a JSON
// handler on file.
func NewLoggerWithWriters(console, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level}),
	))
}
