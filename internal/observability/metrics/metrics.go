package metrics

import "github.com/prometheus/client_golang/prometheus"

// RelayMetrics exposes counters/histograms for the webhook relay.
type RelayMetrics struct {
	inboundTotal    *prometheus.CounterVec
	upstreamTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	webhookLatency  prometheus.Histogram
	sessionsCreated prometheus.Counter
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Inbound gateway webhooks by outcome",
		}, []string{"outcome"}),
		upstreamTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream calls by upstream, operation and result kind",
		}, []string{"upstream", "operation", "result"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Latency of upstream calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"upstream", "operation"}),
		webhookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "webhook",
			Name:      "latency_seconds",
			Help:      "End-to-end latency of webhook processing",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "sessions",
			Name:      "created_total",
			Help:      "Conversation sessions opened with the AI backend",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.upstreamTotal, m.upstreamLatency, m.webhookLatency, m.sessionsCreated)
	return m
}

// RegisterSessionGauge exposes the live session count reported by count.
func RegisterSessionGauge(reg prometheus.Registerer, count func() int) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "sessions",
		Name:      "active",
		Help:      "Sender to session mappings currently held in memory",
	}, func() float64 { return float64(count()) }))
}

func (m *RelayMetrics) ObserveInbound(outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(outcome).Inc()
}

func (m *RelayMetrics) ObserveUpstream(upstream, operation, result string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamTotal.WithLabelValues(upstream, operation, result).Inc()
	m.upstreamLatency.WithLabelValues(upstream, operation).Observe(seconds)
}

func (m *RelayMetrics) ObserveWebhookLatency(seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.Observe(seconds)
}

func (m *RelayMetrics) SessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
}
