// Package logging configures the process-wide slog default logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the default slog logger from CLAWGATE_LOG_LEVEL and an
// optional -log-level / --log-level CLI flag (flag wins). It returns args
// with the flag stripped so a downstream flag parser doesn't choke on it.
func Init(args []string) []string {
	levelStr := os.Getenv("CLAWGATE_LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}

	var remaining []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "--log-level=") {
			levelStr = strings.TrimPrefix(arg, "--log-level=")
			continue
		}
		if strings.HasPrefix(arg, "-log-level=") {
			levelStr = strings.TrimPrefix(arg, "-log-level=")
			continue
		}
		if arg == "-log-level" || arg == "--log-level" {
			if i+1 < len(args) {
				levelStr = args[i+1]
				i++
			}
			continue
		}

		remaining = append(remaining, arg)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(levelStr)})
	slog.SetDefault(slog.New(handler))

	return remaining
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
