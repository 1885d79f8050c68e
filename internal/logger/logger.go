// Package logger provides the structured logging used across the binder
// transport and service layers. It is a thin facade over log/slog with a
// compact text handler for terminals and a JSON handler for log pipelines,
// and it knows how to stamp call-scoped binder context (interface, service,
// code, sender identity) onto every record.
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
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

// state is the logger's mutable configuration. A single value guarded by a
// mutex keeps reconfiguration atomic; the hot path only takes the read
// lock to fetch the current slog.Logger.
type state struct {
	mu       sync.RWMutex
	level    *slog.LevelVar
	format   string
	out      io.Writer
	useColor bool
	log      *slog.Logger
}

var current = newState()

func newState() *state {
	s := &state{
		level:  new(slog.LevelVar),
		format: "text",
		out:    os.Stdout,
	}
	s.level.Set(slog.LevelInfo)
	s.useColor = writerIsTerminal(s.out)
	s.rebuild()
	return s
}

// rebuild swaps the slog handler for the current settings. Callers hold mu.
func (s *state) rebuild() {
	opts := &slog.HandlerOptions{Level: s.level}
	if s.format == "json" {
		s.log = slog.New(slog.NewJSONHandler(s.out, opts))
		return
	}
	s.log = slog.New(newTextHandler(s.out, s.level, s.useColor))
}

// logger returns the active slog.Logger.
func (s *state) logger() *slog.Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.log
}

// parseLevel maps a config string onto a slog level; unknown strings keep
// the current level.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// Init applies the configuration. Output may be "stdout", "stderr" or a
// file path; files are opened append-only and logged without color.
func Init(cfg Config) error {
	current.mu.Lock()
	defer current.mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		current.out = os.Stdout
	case "stderr":
		current.out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", cfg.Output, err)
		}
		current.out = f
	}
	current.useColor = writerIsTerminal(current.out)

	if lv, ok := parseLevel(cfg.Level); ok {
		current.level.Set(lv)
	}
	if f := strings.ToLower(cfg.Format); f == "text" || f == "json" {
		current.format = f
	}

	current.rebuild()
	return nil
}

// InitWithWriter points the logger at an arbitrary writer. Primarily for
// tests.
func InitWithWriter(w io.Writer, level, format string, enableColor bool) {
	current.mu.Lock()
	defer current.mu.Unlock()

	current.out = w
	current.useColor = enableColor
	if lv, ok := parseLevel(level); ok {
		current.level.Set(lv)
	}
	if f := strings.ToLower(format); f == "text" || f == "json" {
		current.format = f
	}
	current.rebuild()
}

// SetLevel sets the minimum log level. Invalid levels are ignored.
func SetLevel(level string) {
	if lv, ok := parseLevel(level); ok {
		current.level.Set(lv)
	}
}

// SetFormat sets the output format ("text" or "json"). Invalid formats are
// ignored.
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	current.mu.Lock()
	defer current.mu.Unlock()
	current.format = format
	current.rebuild()
}

// writerIsTerminal reports whether the writer is an interactive terminal.
func writerIsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f.Fd())
}

// Debug logs at debug level with structured fields.
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) {
	current.logger().Debug(msg, args...)
}

// Info logs at info level with structured fields.
func Info(msg string, args ...any) {
	current.logger().Info(msg, args...)
}

// Warn logs at warn level with structured fields.
func Warn(msg string, args ...any) {
	current.logger().Warn(msg, args...)
}

// Error logs at error level with structured fields.
func Error(msg string, args ...any) {
	current.logger().Error(msg, args...)
}

// DebugCtx logs at debug level, prepending the call context carried by ctx.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	current.logger().Debug(msg, prependContextFields(ctx, args)...)
}

// InfoCtx logs at info level with call context.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	current.logger().Info(msg, prependContextFields(ctx, args)...)
}

// WarnCtx logs at warn level with call context.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	current.logger().Warn(msg, prependContextFields(ctx, args)...)
}

// ErrorCtx logs at error level with call context.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	current.logger().Error(msg, prependContextFields(ctx, args)...)
}

// prependContextFields puts the LogContext fields ahead of the caller's so
// correlation keys appear first in output.
func prependContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}

	ctxArgs := make([]any, 0, 14+len(args))
	if lc.TraceID != "" {
		ctxArgs = append(ctxArgs, KeyTraceID, lc.TraceID)
	}
	if lc.SpanID != "" {
		ctxArgs = append(ctxArgs, KeySpanID, lc.SpanID)
	}
	if lc.Interface != "" {
		ctxArgs = append(ctxArgs, KeyInterface, lc.Interface)
	}
	if lc.Service != "" {
		ctxArgs = append(ctxArgs, KeyService, lc.Service)
	}
	if lc.Code != 0 {
		ctxArgs = append(ctxArgs, KeyCode, lc.Code)
	}
	if lc.SenderPID != 0 {
		ctxArgs = append(ctxArgs, KeySenderPID, lc.SenderPID)
	}
	if lc.SenderUID != 0 {
		ctxArgs = append(ctxArgs, KeySenderUID, lc.SenderUID)
	}
	return append(ctxArgs, args...)
}

// With returns a slog.Logger with pre-bound attributes.
func With(args ...any) *slog.Logger {
	return current.logger().With(args...)
}

// Duration returns the time since start in milliseconds, for use with
// KeyDurationMs.
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
