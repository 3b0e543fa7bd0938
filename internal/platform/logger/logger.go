package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. Text on stdout keeps hosted logs readable;
// services receive it through their WithLogger options.
func New() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
