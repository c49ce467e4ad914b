package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/nextlevelbuilder/noteindex/internal/config"
)

// logLevel is shared by the installed handler so config reloads can change it.
var logLevel = new(slog.LevelVar)

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupLogging installs a stderr slog handler. Stdout stays clean for
// command output and the MCP stdio transport.
func setupLogging(cfg config.LogConfig) {
	level := cfg.Level
	if logLevelFlag != "" {
		level = logLevelFlag
	}
	logLevel.Set(parseLevel(level))

	opts := &slog.HandlerOptions{Level: logLevel}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
