// Package logging wires slog for the CLI: a tint console handler plus an
// optional plain-text log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syftlink/internal/utils"
)

const consoleTimeFormat = "15:04:05.000"

type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// Console receives human readable output. Nil means os.Stderr.
	Console io.Writer
	// FilePath, if set, receives every record at debug level.
	FilePath string
	// ConsoleLevel, if set, is loaded with Level and governs the console
	// handler, so callers can quiet the console while they own the terminal.
	ConsoleLevel *slog.LevelVar
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// New builds a logger from opts. The returned closer releases the log file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var consoleLevel slog.Leveler = level
	if opts.ConsoleLevel != nil {
		opts.ConsoleLevel.Set(level)
		consoleLevel = opts.ConsoleLevel
	}

	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      consoleLevel,
			TimeFormat: consoleTimeFormat,
			NoColor:    !isTerminal(console),
		}),
	}

	var closer io.Closer = nopCloser{}
	if opts.FilePath != "" {
		if err := utils.EnsureParent(opts.FilePath); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}))
		closer = file
	}

	return slog.New(NewMultiHandler(handlers...)), closer, nil
}

func isTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
