// Package logging builds the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Output formats
const (
	FormatAuto   = "auto"
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// Options configures Setup
type Options struct {
	// Format is "auto", "json" or "pretty". Auto picks pretty on a terminal.
	Format string
	Level  string
	// File, when set, also writes JSON logs to a rotating file
	File string
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// NewHandler returns a JSON or tint handler writing to w.
// With FormatAuto, pretty output is used only when tty is true.
func NewHandler(w io.Writer, format string, level slog.Leveler, tty bool) slog.Handler {
	pretty := format == FormatPretty || (format != FormatJSON && tty)
	if pretty {
		return tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
			NoColor:    !tty,
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// withFile duplicates every record into w as JSON, next to the console handler.
func withFile(console slog.Handler, w io.Writer, level slog.Level) slog.Handler {
	return slog.NewMultiHandler(console, slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup installs the default logger and returns a closer for any log file.
func Setup(opts Options) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	tty := term.IsTerminal(int(os.Stdout.Fd()))
	handler := NewHandler(os.Stdout, opts.Format, level, tty)

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("logging: failed to create log directory: %w", err)
		}
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
		}
		handler = withFile(handler, rotating, level)
		closer = rotating
	}

	slog.SetDefault(slog.New(handler))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
