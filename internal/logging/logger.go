package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Format selects the handler used for log output
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

var (
	defaultLogger *slog.Logger
	mu            sync.RWMutex

	// levelVar is shared by every handler built here so SetLevel does not
	// need to rebuild the logger.
	levelVar = new(slog.LevelVar)

	output io.Writer = os.Stderr
	format           = FormatJSON
)

func init() {
	levelVar.Set(slog.LevelInfo)
	defaultLogger = build(output, format)
}

func build(w io.Writer, f Format) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelVar}
	var h slog.Handler
	if f == FormatText {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(NewRedactingHandler(h))
}

// Configure rebuilds the global logger from a level name and format.
func Configure(level string, f Format) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	if f != FormatJSON && f != FormatText {
		return fmt.Errorf("unknown log format %q", f)
	}

	mu.Lock()
	defer mu.Unlock()
	levelVar.Set(lvl)
	format = f
	defaultLogger = build(output, format)
	return nil
}

// ParseLevel converts "debug", "info", "warn" or "error" into a slog.Level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// SetLogger sets the global logger
func SetLogger(logger *slog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = logger
}

// SetOutput sets the output destination for the logger, keeping the format
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	defaultLogger = build(output, format)
}

// SetLevel sets the logging level
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// Level returns the current logging level
func Level() slog.Level {
	return levelVar.Level()
}

// SetTextOutput sets up human-readable text output
func SetTextOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	format = FormatText
	defaultLogger = build(output, format)
}

// Logger returns the default logger
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// With returns a logger with additional context
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Debug logs at debug level
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs at info level
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs at warn level
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs at error level
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// DebugContext logs at debug level with context
func DebugContext(ctx context.Context, msg string, args ...any) {
	Logger().DebugContext(ctx, msg, args...)
}

// InfoContext logs at info level with context
func InfoContext(ctx context.Context, msg string, args ...any) {
	Logger().InfoContext(ctx, msg, args...)
}

// WarnContext logs at warn level with context
func WarnContext(ctx context.Context, msg string, args ...any) {
	Logger().WarnContext(ctx, msg, args...)
}

// ErrorContext logs at error level with context
func ErrorContext(ctx context.Context, msg string, args ...any) {
	Logger().ErrorContext(ctx, msg, args...)
}

// Common field helpers
func Address(addr string) slog.Attr {
	return slog.String("address", addr)
}

func StakeIndex(i int) slog.Attr {
	return slog.Int("stake_index", i)
}

func TxHash(hash string) slog.Attr {
	return slog.String("tx_hash", hash)
}

func Op(op string) slog.Attr {
	return slog.String("op", op)
}

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func Component(name string) slog.Attr {
	return slog.String("component", name)
}
