package logger

import (
	"fmt"
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that driver-level
// and service-level events can be correlated and queried together.
const (
	// ========================================================================
	// Call Correlation
	// ========================================================================
	KeyTraceID = "trace_id" // Per-call trace ID for request correlation
	KeySpanID  = "span_id"  // Span ID for sub-operation tracking

	// ========================================================================
	// Binder Protocol
	// ========================================================================
	KeyInterface = "interface" // Interface token name (android.os.IServiceManager, ...)
	KeyService   = "service"   // Registered service name
	KeyCode      = "code"      // Transaction code
	KeyHandle    = "handle"    // Remote object handle
	KeyTarget    = "target"    // Transaction target handle
	KeyFlags     = "flags"     // Transaction flags bitfield
	KeyCommand   = "command"   // Driver command opcode (BC_*)
	KeyReturn    = "return"    // Driver return opcode (BR_*)
	KeyStatus    = "status"    // Service-level status word from a reply
	KeyStatusMsg = "status_msg" // Human-readable status message

	// ========================================================================
	// Driver I/O
	// ========================================================================
	KeyDevice        = "device"         // Driver device path (/dev/binder)
	KeyVersion       = "version"        // Driver protocol version
	KeyWriteSize     = "write_size"     // Outbound buffer size in bytes
	KeyWriteConsumed = "write_consumed" // Outbound bytes consumed by the driver
	KeyReadSize      = "read_size"      // Inbound buffer size in bytes
	KeyReadConsumed  = "read_consumed"  // Inbound bytes filled by the driver
	KeyBufferAddr    = "buffer_addr"    // Kernel buffer address (FreeBuffer accounting)
	KeyOffsets       = "offsets"        // Number of flat-object offsets in a parcel
	KeyParcelLen     = "parcel_len"     // Parcel payload length in bytes

	// ========================================================================
	// Peer Identification
	// ========================================================================
	KeySenderPID = "sender_pid" // Sending process ID (driver-filled)
	KeySenderUID = "sender_uid" // Sending effective UID (driver-filled)

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyErrorCode  = "error_code"  // Numeric error code (driver errno)
	KeyOperation  = "operation"   // Sub-operation type for composite operations
	KeyCookie     = "cookie"      // Binder object cookie word
)

// Err returns a standard error attribute.
// Usage: logger.Error("transact failed", logger.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Hex returns an attribute rendering v as 0x-prefixed hex.
// Driver opcodes and transaction codes read better in hex.
func Hex(key string, v uint32) slog.Attr {
	return slog.String(key, fmt.Sprintf("0x%x", v))
}
