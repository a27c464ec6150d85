// Package metrics exposes linelog's Prometheus collectors.
//
// A Metrics value is the device Observer and the archive observer; its
// Storage view is the Pebble MetricsHook, so one registry covers the process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "linelog"

// Metrics holds all collectors registered for one process.
type Metrics struct {
	Registry *prometheus.Registry

	CommitsTotal      prometheus.Counter
	EvictionsTotal    prometheus.Counter
	ReleasesTotal     *prometheus.CounterVec
	BytesWrittenTotal prometheus.Counter
	BytesReadTotal    prometheus.Counter
	RejectedWrites    *prometheus.CounterVec
	RetainedRecords   prometheus.Gauge
	RetainedBytes     prometheus.Gauge
	PendingBytes      prometheus.Gauge
	LockWaitSeconds   prometheus.Histogram
	ArchiveWrites     prometheus.Counter
	ArchiveDropped    prometheus.Counter
	StorageOpSeconds  *prometheus.HistogramVec
	StorageBytesTotal *prometheus.CounterVec
	SocketConnections prometheus.Gauge
}

// New registers a fresh collector set on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		CommitsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Records committed to the ring.",
		}),
		EvictionsTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Records overwritten because the ring was full.",
		}),
		ReleasesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "releases_total",
			Help:      "Records handed to the releaser, by reason.",
		}, []string{"reason"}),
		BytesWrittenTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "written_bytes_total",
			Help:      "Bytes accepted by write calls.",
		}),
		BytesReadTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_bytes_total",
			Help:      "Bytes returned by read calls.",
		}),
		RejectedWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_writes_total",
			Help:      "Write calls that failed, by reason.",
		}, []string{"reason"}),
		RetainedRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retained_records",
			Help:      "Records currently held by the ring.",
		}),
		RetainedBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retained_bytes",
			Help:      "Bytes currently held by the ring.",
		}),
		PendingBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_bytes",
			Help:      "Bytes accumulated for the next uncommitted record.",
		}),
		LockWaitSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring the device lock.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 10, 7),
		}),
		ArchiveWrites: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_writes_total",
			Help:      "Released records persisted to the archive.",
		}),
		ArchiveDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_dropped_total",
			Help:      "Released records dropped because the archive queue was full.",
		}),
		StorageOpSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_op_seconds",
			Help:      "Pebble operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		StorageBytesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_bytes_total",
			Help:      "Bytes moved through Pebble, by op.",
		}, []string{"op"}),
		SocketConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "socket_connections",
			Help:      "Open raw socket connections.",
		}),
	}
}

// Device observer.

func (m *Metrics) ObserveCommit(size int) { m.CommitsTotal.Inc() }

func (m *Metrics) ObserveEviction(size int) { m.EvictionsTotal.Inc() }

func (m *Metrics) ObserveRelease(reason string) { m.ReleasesTotal.WithLabelValues(reason).Inc() }

func (m *Metrics) ObserveWrite(n int) { m.BytesWrittenTotal.Add(float64(n)) }

func (m *Metrics) ObserveRead(n int) { m.BytesReadTotal.Add(float64(n)) }

func (m *Metrics) ObserveRejectedWrite(reason string) {
	m.RejectedWrites.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) { m.LockWaitSeconds.Observe(d.Seconds()) }

// ObserveState records ring occupancy after a mutation.
func (m *Metrics) ObserveState(records int, bytes int64, pending int) {
	m.RetainedRecords.Set(float64(records))
	m.RetainedBytes.Set(float64(bytes))
	m.PendingBytes.Set(float64(pending))
}

// Archive observer.

func (m *Metrics) ObserveArchived() { m.ArchiveWrites.Inc() }
func (m *Metrics) ObserveDropped()  { m.ArchiveDropped.Inc() }

// Socket observer.

func (m *Metrics) ObserveConnOpened() { m.SocketConnections.Inc() }
func (m *Metrics) ObserveConnClosed() { m.SocketConnections.Dec() }

// Storage returns a pebblestore.MetricsHook view.
func (m *Metrics) Storage() StorageHook { return StorageHook{m: m} }

// StorageHook adapts Metrics to the Pebble wrapper's hook surface.
type StorageHook struct{ m *Metrics }

func (h StorageHook) ObserveWrite(elapsed time.Duration, bytes int) {
	h.m.StorageOpSeconds.WithLabelValues("write").Observe(elapsed.Seconds())
	h.m.StorageBytesTotal.WithLabelValues("write").Add(float64(bytes))
}

func (h StorageHook) ObserveRead(elapsed time.Duration, bytes int) {
	h.m.StorageOpSeconds.WithLabelValues("read").Observe(elapsed.Seconds())
	h.m.StorageBytesTotal.WithLabelValues("read").Add(float64(bytes))
}

func (h StorageHook) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	h.m.StorageOpSeconds.WithLabelValues("commit").Observe(elapsed.Seconds())
	h.m.StorageBytesTotal.WithLabelValues("commit").Add(float64(bytes))
}
