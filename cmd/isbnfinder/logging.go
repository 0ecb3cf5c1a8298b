package main

import (
	"log/slog"
	"os"

	"github.com/lepinkainen/humanlog"
)

// newLogger writes human readable logs to a terminal and JSON otherwise.
// Logs go to stderr so command output on stdout stays clean.
func newLogger(verbose bool) (*slog.Logger, slog.Level) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = humanlog.NewHandler(os.Stderr, &humanlog.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
