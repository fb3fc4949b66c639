package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rdpc"

var counterHelp = map[string]string{
	"bytes_received_total":    "Bytes read from the transport.",
	"bytes_sent_total":        "Bytes written to the transport.",
	"slow_path_pdus_total":    "Share-layer PDUs decoded.",
	"fast_path_updates_total": "Fast-path updates decoded.",
	"rectangles_total":        "Bitmap rectangles drawn.",
	"palette_updates_total":   "Palette updates applied.",
	"input_events_total":      "Input events sent.",
	"dropped_events_total":    "Input events dropped before the session was active.",
}

// Metrics exposes a Collector to prometheus. Counter values are read at
// scrape time, so the hot path only touches atomics.
type Metrics struct {
	c          *Collector
	descs      map[string]*prometheus.Desc
	throughput *prometheus.Desc
	steps      *prometheus.HistogramVec
	registry   *prometheus.Registry
}

// NewMetrics wraps c in a fresh registry that also carries the Go runtime
// and process collectors. sessionID is attached as a constant label.
func NewMetrics(c *Collector, sessionID string) *Metrics {
	labels := prometheus.Labels{"session_id": sessionID}
	reg := prometheus.NewRegistry()

	m := &Metrics{
		c:        c,
		descs:    make(map[string]*prometheus.Desc, len(counterHelp)),
		registry: reg,
		throughput: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "throughput_bytes_per_second"),
			"Inbound bytes per second averaged over ten seconds.", nil, labels),
	}
	for name, help := range counterHelp {
		m.descs[name] = prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, labels)
	}

	reg.MustRegister(m)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m.steps = promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        "handshake_step_seconds",
		Help:        "Time from sending a handshake request to its response.",
		ConstLabels: labels,
		Buckets:     prometheus.ExponentialBuckets(0.001, 4, 8),
	}, []string{"step"})
	return m
}

// Registry returns the registry m is registered in.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStep records how long a handshake step waited for its response.
func (m *Metrics) ObserveStep(step string, d time.Duration) {
	m.steps.WithLabelValues(step).Observe(d.Seconds())
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range m.descs {
		ch <- d
	}
	ch <- m.throughput
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	s := m.c.Snapshot()
	values := map[string]int64{
		"bytes_received_total":    s.BytesIn,
		"bytes_sent_total":        s.BytesOut,
		"slow_path_pdus_total":    s.SlowPathPDUs,
		"fast_path_updates_total": s.FastPathUpdates,
		"rectangles_total":        s.Rectangles,
		"palette_updates_total":   s.PaletteUpdates,
		"input_events_total":      s.InputEvents,
		"dropped_events_total":    s.DroppedEvents,
	}
	for name, v := range values {
		ch <- prometheus.MustNewConstMetric(m.descs[name], prometheus.CounterValue, float64(v))
	}
	ch <- prometheus.MustNewConstMetric(m.throughput, prometheus.GaugeValue, m.c.RollingSpeed(10))
}
