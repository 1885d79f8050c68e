// Package prometheus provides Prometheus-backed implementations of the
// metrics interfaces.
package prometheus

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/gobinder/pkg/metrics"
)

// binderMetrics is the Prometheus implementation for binder driver metrics.
type binderMetrics struct {
	transactions  *prometheus.CounterVec
	txnDuration   *prometheus.HistogramVec
	flushWrite    prometheus.Counter
	flushRead     prometheus.Counter
	driverReturns *prometheus.CounterVec
}

// NewBinderMetrics creates a new Prometheus-backed binder metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBinderMetrics() metrics.BinderMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &binderMetrics{
		transactions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobinder_transactions_total",
				Help: "Total binder transactions by direction, code and error class",
			},
			[]string{"direction", "code", "error"},
		),
		txnDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gobinder_transaction_duration_seconds",
				Help:    "Binder transaction duration by direction",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"direction"},
		),
		flushWrite: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gobinder_flush_write_bytes_total",
				Help: "Total outbound bytes consumed by the driver",
			},
		),
		flushRead: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "gobinder_flush_read_bytes_total",
				Help: "Total inbound bytes delivered by the driver",
			},
		),
		driverReturns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gobinder_driver_returns_total",
				Help: "Total inbound driver return commands by opcode name",
			},
			[]string{"opcode"},
		),
	}
}

// RecordTransaction records a completed transact or reply.
func (m *binderMetrics) RecordTransaction(direction string, code uint32, duration time.Duration, errClass string) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(direction, fmt.Sprintf("0x%x", code), errClass).Inc()
	m.txnDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordFlush records one write/read ioctl round trip.
func (m *binderMetrics) RecordFlush(writeConsumed, readConsumed uint64) {
	if m == nil {
		return
	}
	m.flushWrite.Add(float64(writeConsumed))
	m.flushRead.Add(float64(readConsumed))
}

// RecordDriverReturn counts an inbound driver return opcode.
func (m *binderMetrics) RecordDriverReturn(opcode string) {
	if m == nil {
		return
	}
	m.driverReturns.WithLabelValues(opcode).Inc()
}
