package logger

import (
	"log/slog"
	"os"
)

// New returns the default structured logger. Stores and emitters take a
// *slog.Logger in their constructors so tests can swap in a silent one.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

// Discard returns a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
