// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelEnv names the environment variable holding the log level.
const LevelEnv = "DOCCHAT_LOG_LEVEL"

var level = new(slog.LevelVar)

// Configure installs a TextHandler writing to w as the default logger. The
// level comes from DOCCHAT_LOG_LEVEL (DEBUG, INFO, WARN, ERROR) and
// defaults to INFO.
func Configure(w io.Writer) {
	level.Set(ParseLevel(os.Getenv(LevelEnv)))
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// SetLevel changes the level of the logger installed by Configure.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel maps a level name to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
