// Package logging builds the structured logger every component binary
// uses, following the same level/format wiring cmd/bot/main.go used in
// the original bot: a JSON or text slog.Handler selected by config,
// built once at startup and passed down explicitly.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Config controls the logger's verbosity and encoding.
type Config struct {
	Level  string `mapstructure:"level"`  // debug|info|warn|error
	Format string `mapstructure:"format"` // json|text
}

// New builds a *slog.Logger for component, tagging every record with a
// "component" attribute so multiplexed output from several long-lived
// processes stays attributable.
func New(cfg Config, component string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler).With("component", component)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
