// Package metrics exposes Prometheus counters and histograms for reply turns
// and the external service calls they make.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	turnsTotal   *prometheus.CounterVec
	callsTotal   *prometheus.CounterVec
	callLatency  *prometheus.HistogramVec
	actionsTotal *prometheus.CounterVec
	sendFailures *prometheus.CounterVec
}

// New registers the replybot collectors on reg (DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replybot",
			Name:      "turns_total",
			Help:      "Inbound messages processed, by completion outcome",
		}, []string{"outcome"}),
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replybot",
			Name:      "service_calls_total",
			Help:      "External service calls, by service and outcome",
		}, []string{"service", "outcome"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replybot",
			Name:      "service_call_seconds",
			Help:      "External service call latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"service"}),
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replybot",
			Name:      "actions_total",
			Help:      "Outbound actions emitted, by kind",
		}, []string{"kind"}),
		sendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replybot",
			Name:      "send_failures_total",
			Help:      "Outbound actions the channel failed to deliver, by kind",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.callsTotal, m.callLatency, m.actionsTotal, m.sendFailures)
	return m
}

func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCall(service, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(service, outcome).Inc()
	m.callLatency.WithLabelValues(service).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAction(kind string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSendFailure(kind string) {
	if m == nil {
		return
	}
	m.sendFailures.WithLabelValues(kind).Inc()
}

// Handler renders the metrics gathered by g in Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
