package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alphaorbit/livefeed/internal/connection"
	"github.com/alphaorbit/livefeed/internal/model"
	"github.com/alphaorbit/livefeed/internal/writer"
)

const namespace = "livefeed"

// Metrics records channel and dispatch activity. It implements both
// connection.Recorder and dispatch.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	transitions  *prometheus.CounterVec
	openChannels *prometheus.GaugeVec
	transports   *prometheus.CounterVec
	retries      *prometheus.CounterVec
	retryDelay   *prometheus.HistogramVec
	frames       *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
}

// New creates Metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "transitions_total",
			Help:      "Channel state transitions.",
		}, []string{"kind", "from", "to"}),
		openChannels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "open",
			Help:      "Channels currently in the Open state.",
		}, []string{"kind"}),
		transports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "transports_created_total",
			Help:      "Transports created, one per connect attempt.",
		}, []string{"kind"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "retries_scheduled_total",
			Help:      "Reconnects scheduled after a failed or dropped transport.",
		}, []string{"kind"}),
		retryDelay: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "channel",
			Name:      "retry_delay_seconds",
			Help:      "Delay chosen by the reconnect policy.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"kind"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "frames_total",
			Help:      "Frames received from transports.",
		}, []string{"kind"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "decode_errors_total",
			Help:      "Frames that failed to decode.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.transitions,
		m.openChannels,
		m.transports,
		m.retries,
		m.retryDelay,
		m.frames,
		m.decodeErrors,
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// StateChanged implements connection.Recorder.
func (m *Metrics) StateChanged(kind model.Kind, from, to connection.State) {
	k := string(kind)
	m.transitions.WithLabelValues(k, from.String(), to.String()).Inc()
	if to == connection.StateOpen {
		m.openChannels.WithLabelValues(k).Inc()
	}
	if from == connection.StateOpen {
		m.openChannels.WithLabelValues(k).Dec()
	}
}

// TransportCreated implements connection.Recorder.
func (m *Metrics) TransportCreated(kind model.Kind) {
	m.transports.WithLabelValues(string(kind)).Inc()
}

// RetryScheduled implements connection.Recorder.
func (m *Metrics) RetryScheduled(kind model.Kind, delay time.Duration) {
	m.retries.WithLabelValues(string(kind)).Inc()
	m.retryDelay.WithLabelValues(string(kind)).Observe(delay.Seconds())
}

// FrameReceived implements dispatch.Recorder.
func (m *Metrics) FrameReceived(kind model.Kind) {
	m.frames.WithLabelValues(string(kind)).Inc()
}

// DecodeFailed implements dispatch.Recorder.
func (m *Metrics) DecodeFailed(kind model.Kind) {
	m.decodeErrors.WithLabelValues(string(kind)).Inc()
}

// WatchWriter exports the writer's counters, read at scrape time.
func (m *Metrics) WatchWriter(stats func() writer.WriterMetrics) {
	counter := func(name, help string, get func(writer.WriterMetrics) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "writer",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(get(stats())) })
	}
	m.reg.MustRegister(
		counter("inserts_total", "Rows written.", func(s writer.WriterMetrics) int64 { return s.Inserts }),
		counter("conflicts_total", "Duplicate token rows ignored.", func(s writer.WriterMetrics) int64 { return s.Conflicts }),
		counter("flushes_total", "Successful batch flushes.", func(s writer.WriterMetrics) int64 { return s.Flushes }),
		counter("errors_total", "Failed batch flushes.", func(s writer.WriterMetrics) int64 { return s.Errors }),
		counter("skipped_total", "Messages not written.", func(s writer.WriterMetrics) int64 { return s.Skipped }),
	)
}
