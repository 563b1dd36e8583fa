package ampyobs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Public enums (bounded label values)
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	reg *prometheus.Registry
}

func NewMetrics() *Metrics {
	return &Metrics{reg: prometheus.NewRegistry()}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) NewCounter(namespace, name, help string, labels []string, constLabels prometheus.Labels) *prometheus.CounterVec {
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: constLabels,
	}, labels)
	m.reg.MustRegister(cv)
	return cv
}

func (m *Metrics) NewHistogram(namespace, name, help string, buckets []float64, labels []string, constLabels prometheus.Labels) *prometheus.HistogramVec {
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		Buckets:     buckets,
		ConstLabels: constLabels,
	}, labels)
	m.reg.MustRegister(hv)
	return hv
}

func (m *Metrics) NewGauge(namespace, name, help string, labels []string, constLabels prometheus.Labels) *prometheus.GaugeVec {
	gv := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        name,
		Help:        help,
		ConstLabels: constLabels,
	}, labels)
	m.reg.MustRegister(gv)
	return gv
}

// histogramBoundariesMs returns consistent bucket boundaries for latency histograms
func histogramBoundariesMs() []float64 {
	return []float64{1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000} // ms
}

// RunMetrics are the per-node run instruments fed by MetricsHandler.
type RunMetrics struct {
	Runs     *prometheus.CounterVec   // node, outcome
	Latency  *prometheus.HistogramVec // node
	InFlight *prometheus.GaugeVec     // node
}

func NewRunMetrics(m *Metrics, namespace string) *RunMetrics {
	return &RunMetrics{
		Runs: m.NewCounter(namespace, "runs_total",
			"Node runs by outcome.", []string{"node", "outcome"}, nil),
		Latency: m.NewHistogram(namespace, "run_latency_ms",
			"Node run latency in milliseconds.", histogramBoundariesMs(), []string{"node"}, nil),
		InFlight: m.NewGauge(namespace, "runs_in_flight",
			"Node runs currently open.", []string{"node"}, nil),
	}
}
