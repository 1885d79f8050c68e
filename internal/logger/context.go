package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds call-scoped logging context for a binder transaction.
type LogContext struct {
	TraceID   string    // Per-call trace ID
	SpanID    string    // Span ID
	Interface string    // Interface token name
	Service   string    // Registered service name
	Code      uint32    // Transaction code
	SenderPID uint32    // Sending process ID (driver-filled, server side)
	SenderUID uint32    // Sending effective UID (driver-filled, server side)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a call on the given interface.
func NewLogContext(iface string) *LogContext {
	return &LogContext{
		Interface: iface,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithCode returns a copy with the transaction code set
func (lc *LogContext) WithCode(code uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Code = code
	}
	return clone
}

// WithService returns a copy with the service name set
func (lc *LogContext) WithService(service string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Service = service
	}
	return clone
}

// WithSender returns a copy with the driver-reported sender identity set
func (lc *LogContext) WithSender(pid, uid uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.SenderPID = pid
		clone.SenderUID = uid
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
