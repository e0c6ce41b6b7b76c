package logger

import (
	"log/slog"
	"os"
)

// New returns a JSON structured logger writing to stdout. Services receive
// this and add their own attrs; nothing here is request-scoped.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
