package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config is logger configuration
type Config struct {
	// Level is one of debug, info, warn, error
	Level string
	// Format is one of text, json, console
	Format string
	// File is path of rotated log file; empty logs to Output
	File string
	// MaxSize is maximum log file size in megabytes before rotation
	MaxSize int
	// MaxBackups is number of rotated files to keep
	MaxBackups int
	// MaxAge is number of days to keep rotated files
	MaxAge int
	// Compress compresses rotated files
	Compress bool
	// Output is log destination when File is empty; defaults to stderr
	Output io.Writer
}

var (
	mu sync.Mutex
	lg *slog.Logger
)

// New creates new logger from configuration c.
func New(c Config) *slog.Logger {
	out := c.Output
	if c.File != "" {
		out = &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAge,
			Compress:   c.Compress,
		}
	}
	if out == nil {
		out = os.Stderr
	}

	level := ParseLevel(c.Level)
	var handler slog.Handler
	switch strings.ToLower(c.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	case "text":
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	default:
		handler = &consoleHandler{w: out, level: level}
	}

	return slog.New(handler)
}

// Init creates logger from c and makes it the process default.
func Init(c Config) *slog.Logger {
	l := New(c)

	mu.Lock()
	lg = l
	mu.Unlock()
	slog.SetDefault(l)

	return l
}

// L returns the process logger, creating an info level console logger on first use.
func L() *slog.Logger {
	mu.Lock()
	l := lg
	mu.Unlock()

	if l == nil {
		return Init(Config{Level: "info", Format: "console"})
	}

	return l
}

// ParseLevel parses log level name. Unknown names map to info.
func ParseLevel(level string) slog.Level {
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

// consoleHandler writes one human readable line per record:
//
//	12:00:00 INFO  filter run finished  steps=500 duration=3ms
type consoleHandler struct {
	mu    sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
	group string
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", r.Time.Format(time.TimeOnly), levelTag(r.Level), r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, h.group, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())

	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &consoleHandler{
		w:     h.w,
		level: h.level,
		attrs: append(append([]slog.Attr{}, h.attrs...), attrs...),
		group: h.group,
	}
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if h.group != "" {
		name = h.group + "." + name
	}

	return &consoleHandler{
		w:     h.w,
		level: h.level,
		attrs: append([]slog.Attr{}, h.attrs...),
		group: name,
	}
}

func levelTag(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN "
	case l >= slog.LevelInfo:
		return "INFO "
	}

	return "DEBUG"
}

func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	key := a.Key
	if group != "" {
		key = group + "." + key
	}
	fmt.Fprintf(b, "  %s=%v", key, a.Value)
}
