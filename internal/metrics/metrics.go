package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledger"

// MillisecondsElapsed returns the time since from in milliseconds.
func MillisecondsElapsed(from time.Time) float64 {
	return float64(time.Since(from)) / float64(time.Millisecond)
}

// Metrics groups every collector exported by the server.
type Metrics struct {
	registry *prometheus.Registry

	appendedRecords prometheus.Counter
	appendedBytes   prometheus.Counter
	evictions       *prometheus.CounterVec
	persistTime     prometheus.Histogram
	persistErrors   prometheus.Counter
	streams         prometheus.Gauge
	records         prometheus.Gauge

	storageTime  *prometheus.HistogramVec
	storageBytes *prometheus.CounterVec

	tailSubscribers *prometheus.GaugeVec
	tailSent        *prometheus.CounterVec
	tailDropped     *prometheus.CounterVec
}

// New builds a Metrics value backed by a fresh registry. Process and Go
// runtime collectors are registered alongside.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		appendedRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appended_records_total",
			Help:      "Records appended to the store.",
		}),
		appendedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appended_bytes_total",
			Help:      "Payload bytes appended to the store.",
		}),
		evictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evicted_records_total",
			Help:      "Records removed by retention.",
		}, []string{"reason"}),
		persistTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_time_milliseconds",
			Help:      "The time elapsed writing a snapshot.",
			Buckets:   []float64{0.5, 1, 5, 50, 100, 500, 2000},
		}),
		persistErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_errors_total",
			Help:      "Snapshot writes that failed.",
		}),
		streams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Distinct sessions currently held.",
		}),
		records: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records currently held.",
		}),
		storageTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_op_time_milliseconds",
			Help:      "The time elapsed in storage engine calls.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 50},
		}, []string{"op"}),
		storageBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_bytes_total",
			Help:      "Bytes moved through the storage engine.",
		}, []string{"op"}),
		tailSubscribers: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tail_subscribers",
			Help:      "Active live-tail subscribers.",
		}, []string{"transport"}),
		tailSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tail_sent_records_total",
			Help:      "Records delivered to live-tail subscribers.",
		}, []string{"transport"}),
		tailDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tail_dropped_subscribers_total",
			Help:      "Live-tail subscribers closed because they fell behind.",
		}, []string{"transport"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAppend implements ledger.Observer.
func (m *Metrics) ObserveAppend(records int, bytes int) {
	m.appendedRecords.Add(float64(records))
	m.appendedBytes.Add(float64(bytes))
}

// ObserveEviction implements ledger.Observer.
func (m *Metrics) ObserveEviction(byAge int, byCount int) {
	if byAge > 0 {
		m.evictions.WithLabelValues("age").Add(float64(byAge))
	}
	if byCount > 0 {
		m.evictions.WithLabelValues("count").Add(float64(byCount))
	}
}

// ObservePersist implements ledger.Observer.
func (m *Metrics) ObservePersist(elapsed time.Duration, err error) {
	m.persistTime.Observe(ms(elapsed))
	if err != nil {
		m.persistErrors.Inc()
	}
}

// ObserveSize implements ledger.Observer.
func (m *Metrics) ObserveSize(streams int, records int) {
	m.streams.Set(float64(streams))
	m.records.Set(float64(records))
}

// ObserveWrite implements the pebble MetricsHook.
func (m *Metrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.storageTime.WithLabelValues("write").Observe(ms(elapsed))
	m.storageBytes.WithLabelValues("write").Add(float64(bytes))
}

// ObserveRead implements the pebble MetricsHook.
func (m *Metrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.storageTime.WithLabelValues("read").Observe(ms(elapsed))
	m.storageBytes.WithLabelValues("read").Add(float64(bytes))
}

// ObserveBatchCommit implements the pebble MetricsHook.
func (m *Metrics) ObserveBatchCommit(elapsed time.Duration, numOps int, bytes int) {
	m.storageTime.WithLabelValues("commit").Observe(ms(elapsed))
	m.storageBytes.WithLabelValues("commit").Add(float64(bytes))
}

// TailOpened records a new live-tail subscriber on transport.
func (m *Metrics) TailOpened(transport string) {
	m.tailSubscribers.WithLabelValues(transport).Inc()
}

// TailClosed records a live-tail subscriber leaving.
func (m *Metrics) TailClosed(transport string) {
	m.tailSubscribers.WithLabelValues(transport).Dec()
}

// TailSent counts records delivered on transport.
func (m *Metrics) TailSent(transport string, n int) {
	m.tailSent.WithLabelValues(transport).Add(float64(n))
}

// TailDropped counts a subscriber disconnected for falling behind.
func (m *Metrics) TailDropped(transport string) {
	m.tailDropped.WithLabelValues(transport).Inc()
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
