// Package metrics defines the Prometheus collectors for snapshot sync and
// the backup slot server. All methods are safe on a nil receiver.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultSuccess   = "success"
	ResultFailed    = "failed"
	ResultCoalesced = "coalesced"
	ResultAbsent    = "absent"
)

// Op label values.
const (
	OpUpload   = "upload"
	OpDownload = "download"
)

type SyncMetrics struct {
	ops           *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	snapshotBytes prometheus.Gauge
}

// NewSyncMetrics registers the sync collectors with registerer.
// A nil registerer means prometheus.DefaultRegisterer.
func NewSyncMetrics(registerer prometheus.Registerer) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	ops := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bita_sync_operations_total",
			Help: "Snapshot sync operations by kind and outcome.",
		},
		[]string{"op", "result"}, // upload|download, success|failed|coalesced|absent
	)

	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bita_sync_duration_seconds",
			Help:    "Time spent in a snapshot upload or download, including waiting for the sync lock.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op"},
	)

	snapshotBytes := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bita_snapshot_bytes",
			Help: "Size of the most recently synced snapshot.",
		},
	)

	registerer.MustRegister(ops, duration, snapshotBytes)

	return &SyncMetrics{
		ops:           ops,
		duration:      duration,
		snapshotBytes: snapshotBytes,
	}
}

func (m *SyncMetrics) Observe(op, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op, result).Inc()
	if result != ResultCoalesced {
		m.duration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

func (m *SyncMetrics) SetSnapshotBytes(n int) {
	if m == nil {
		return
	}
	m.snapshotBytes.Set(float64(n))
}

// SlotMetrics counts requests served by the backup slot server.
type SlotMetrics struct {
	requests    *prometheus.CounterVec
	storedBytes *prometheus.HistogramVec
}

// NewSlotMetrics registers the slot server collectors with registerer.
// A nil registerer means prometheus.DefaultRegisterer.
func NewSlotMetrics(registerer prometheus.Registerer) *SlotMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bita_slot_requests_total",
			Help: "Backup slot requests by method and status code.",
		},
		[]string{"method", "code"},
	)

	storedBytes := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bita_slot_payload_bytes",
			Help:    "Size of backup payloads written to the slot.",
			Buckets: prometheus.ExponentialBuckets(4096, 4, 8), // 4KiB .. 64MiB
		},
		[]string{"method"},
	)

	registerer.MustRegister(requests, storedBytes)

	return &SlotMetrics{requests: requests, storedBytes: storedBytes}
}

func (m *SlotMetrics) IncRequest(method, code string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, code).Inc()
}

func (m *SlotMetrics) ObservePayload(method string, n int) {
	if m == nil {
		return
	}
	m.storedBytes.WithLabelValues(method).Observe(float64(n))
}
