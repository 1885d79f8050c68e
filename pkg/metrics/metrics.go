// Package metrics defines the observability interfaces for the binder
// transport. Implementations live in subpackages (currently Prometheus);
// passing nil disables collection with zero overhead.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the global Prometheus registry. Call once at startup
// before constructing any metrics implementation.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the global registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// BinderMetrics provides observability for binder driver operations.
//
// All methods must be safe to call on a nil implementation value; callers
// pass nil to disable collection.
type BinderMetrics interface {
	// RecordTransaction records a completed transact or reply with its
	// direction ("transact" or "reply"), transaction code, duration and
	// error class (empty on success).
	RecordTransaction(direction string, code uint32, duration time.Duration, errClass string)

	// RecordFlush records one BINDER_WRITE_READ round trip with the number
	// of outbound bytes consumed and inbound bytes delivered.
	RecordFlush(writeConsumed, readConsumed uint64)

	// RecordDriverReturn counts an inbound driver return opcode by name.
	RecordDriverReturn(opcode string)
}
