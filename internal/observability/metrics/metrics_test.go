package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOutreachMetricsObserve(t *testing.T) {
	m := NewOutreachMetrics(prometheus.NewRegistry())
	m.ObserveOutbound("text", "sent", false)
	m.ObserveOutbound("voice", "initiated", true)
	m.ObserveWebhook("confirmed", 0.25)
	m.ObserveJob("reminder_24hr", 10, 1)
	m.ObservePendingRequest()
}

func TestOutreachMetricsNilSafe(t *testing.T) {
	var m *OutreachMetrics
	m.ObserveOutbound("text", "sent", false)
	m.ObserveWebhook("confirmed", 0.1)
	m.ObserveJob("no_show", 0, 0)
	m.ObservePendingRequest()
}
