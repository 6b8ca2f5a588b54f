// internal/logging/logging.go
//
// Builds the process logger from the loaded configuration. Log files live
// under .gantry/logs so failures stay inspectable after the process exits.

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gantryhost/gantry/internal/config"
)

// New returns the configured logger and a close function releasing any
// file handle it opened. The close function is never nil.
func New(cfg *config.Config) (*slog.Logger, func() error, error) {
	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	var (
		sink      io.Writer = os.Stderr
		closeFunc           = func() error { return nil }
	)
	if cfg.Log.File != "" {
		path := filepath.Join(cfg.GantryProjectDir, config.LogsDirName, cfg.Log.File)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open log file: %w", err)
		}
		sink = file
		closeFunc = file.Close
	}
	handler := slog.NewTextHandler(sink, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closeFunc, nil
}

func parseLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("logging: unknown level %q", raw)
	}
}
