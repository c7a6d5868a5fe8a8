package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutreachMetrics exposes counters/histograms for the confirmation and
// follow-up flows.
type OutreachMetrics struct {
	outboundTotal  *prometheus.CounterVec
	webhookTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
	jobProcessed   *prometheus.CounterVec
	jobFailures    *prometheus.CounterVec
	pendingRaised  prometheus.Counter
}

func NewOutreachMetrics(reg prometheus.Registerer) *OutreachMetrics {
	m := &OutreachMetrics{
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "channels",
			Name:      "outbound_total",
			Help:      "Total outbound sends by channel",
		}, []string{"channel", "status", "suppressed"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "reconcile",
			Name:      "call_outcome_webhook_total",
			Help:      "Total call-outcome webhooks by result",
		}, []string{"result"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "outreach",
			Subsystem: "reconcile",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of call-outcome webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		jobProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Appointments processed per batch job",
		}, []string{"job"}),
		jobFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "jobs",
			Name:      "failures_total",
			Help:      "Per-item failures per batch job",
		}, []string{"job"}),
		pendingRaised: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "outreach",
			Subsystem: "reconcile",
			Name:      "pending_requests_total",
			Help:      "Pending requests raised for staff review",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.outboundTotal, m.webhookTotal, m.webhookLatency, m.jobProcessed, m.jobFailures, m.pendingRaised)
	return m
}

func (m *OutreachMetrics) ObserveOutbound(channel, status string, suppressed bool) {
	if m == nil {
		return
	}
	label := "false"
	if suppressed {
		label = "true"
	}
	m.outboundTotal.WithLabelValues(channel, status, label).Inc()
}

func (m *OutreachMetrics) ObserveWebhook(result string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(result).Inc()
	m.webhookLatency.WithLabelValues(result).Observe(seconds)
}

func (m *OutreachMetrics) ObserveJob(job string, processed, failures int) {
	if m == nil {
		return
	}
	m.jobProcessed.WithLabelValues(job).Add(float64(processed))
	m.jobFailures.WithLabelValues(job).Add(float64(failures))
}

func (m *OutreachMetrics) ObservePendingRequest() {
	if m == nil {
		return
	}
	m.pendingRaised.Inc()
}
