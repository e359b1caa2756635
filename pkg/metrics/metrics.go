// Package metrics provides optional Prometheus instrumentation for the
// client. A nil *Metrics is fully usable and records nothing; call New to
// get one wired to a prometheus.Registerer. This mirrors the
// ambient observability style of the example pack's broker client: the
// hot path never branches on "are metrics enabled", it just always calls
// into the recorder.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the counters and histograms the client updates as it
// runs. Every method is safe on a nil *Metrics and is then a pure no-op;
// a non-nil Metrics must come from New.
type Metrics struct {
	connectErrors   *prometheus.CounterVec
	shuns           *prometheus.CounterVec
	timeouts        *prometheus.CounterVec
	bytesWritten    *prometheus.CounterVec
	bytesRead       *prometheus.CounterVec
	serverErrors    *prometheus.CounterVec
	batchLatency    prometheus.Histogram
}

// New creates a Metrics and registers its collectors with reg. If reg is
// nil, the returned Metrics still works but nothing is exported.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connectErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gomemfast",
			Name:      "connect_errors_total",
			Help:      "Connection attempts that failed, by server.",
		}, []string{"server"}),
		shuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gomemfast",
			Name:      "shuns_total",
			Help:      "Batch requests refused because their server was shunned, by server.",
		}, []string{"server"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gomemfast",
			Name:      "timeouts_total",
			Help:      "Batch deadlines exceeded before a server replied, by server.",
		}, []string{"server"}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gomemfast",
			Name:      "bytes_written_total",
			Help:      "Bytes written to each server connection.",
		}, []string{"server"}),
		bytesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gomemfast",
			Name:      "bytes_read_total",
			Help:      "Bytes read from each server connection.",
		}, []string{"server"}),
		serverErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gomemfast",
			Name:      "server_errors_total",
			Help:      "ERROR/CLIENT_ERROR/SERVER_ERROR replies received, by server and kind.",
		}, []string{"server", "kind"}),
		batchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gomemfast",
			Name:      "batch_latency_seconds",
			Help:      "Wall-clock duration of a dispatch batch from issue to full assembly.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.connectErrors, m.shuns, m.timeouts, m.bytesWritten, m.bytesRead, m.serverErrors, m.batchLatency)
	}
	return m
}

func (m *Metrics) ConnectError(server string) {
	if m == nil {
		return
	}
	m.connectErrors.WithLabelValues(server).Inc()
}

func (m *Metrics) Shun(server string) {
	if m == nil {
		return
	}
	m.shuns.WithLabelValues(server).Inc()
}

func (m *Metrics) Timeout(server string) {
	if m == nil {
		return
	}
	m.timeouts.WithLabelValues(server).Inc()
}

func (m *Metrics) BytesWritten(server string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesWritten.WithLabelValues(server).Add(float64(n))
}

func (m *Metrics) BytesRead(server string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.WithLabelValues(server).Add(float64(n))
}

func (m *Metrics) ServerError(server, kind string) {
	if m == nil {
		return
	}
	m.serverErrors.WithLabelValues(server, kind).Inc()
}

func (m *Metrics) ObserveBatchLatency(seconds float64) {
	if m == nil {
		return
	}
	m.batchLatency.Observe(seconds)
}
