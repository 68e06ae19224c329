package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ChannelDelivery("telegram", StatusSuccess)
	m.ChannelDelivery("telegram", StatusSuccess)
	m.ChannelDelivery("discord", StatusFailure)
	m.RuleExecuted("notify", false)
	m.EventProcessed("subscriptions", errors.New("boom"))

	if got := testutil.ToFloat64(m.channelDeliveries.WithLabelValues("telegram", StatusSuccess)); got != 2 {
		t.Fatalf("telegram deliveries mismatch: %v", got)
	}
	if got := testutil.ToFloat64(m.channelDeliveries.WithLabelValues("discord", StatusFailure)); got != 1 {
		t.Fatalf("discord failures mismatch: %v", got)
	}
	if got := testutil.ToFloat64(m.ruleExecutions.WithLabelValues("notify", StatusFailure)); got != 1 {
		t.Fatalf("rule failures mismatch: %v", got)
	}
	if got := testutil.ToFloat64(m.eventsProcessed.WithLabelValues("subscriptions", StatusFailure)); got != 1 {
		t.Fatalf("pipeline failures mismatch: %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.EventReceived("nats", "Transfer")
	m.PresencePush("offline")
	m.ConnectionOpened()
}
