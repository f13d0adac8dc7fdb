package logger

import (
	"log/slog"
	"os"
	"sync"
)

var (
	loggerInstance *slog.Logger
	once           sync.Once
)

// GetLogger returns the process-wide structured logger. The handler is JSON
// unless ENV_MODE is "development", in which case a text handler is used.
// The mode is read straight from the process environment because the config
// package itself logs while loading.
func GetLogger() *slog.Logger {
	once.Do(func() {
		options := &slog.HandlerOptions{Level: levelFromEnv()}

		var handler slog.Handler
		if os.Getenv("ENV_MODE") == "development" {
			handler = slog.NewTextHandler(os.Stdout, options)
		} else {
			handler = slog.NewJSONHandler(os.Stdout, options)
		}

		loggerInstance = slog.New(handler)
	})

	return loggerInstance
}

func levelFromEnv() slog.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
