package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := c.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var metric dto.Metric
	if err := g.Write(&metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return metric.GetGauge().GetValue()
}

func TestNew(t *testing.T) {
	m := New()
	if m == nil {
		t.Fatal("New() returned nil")
	}
	if m.Registry() == nil {
		t.Error("Registry() returned nil")
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("registry has no metric families")
	}
}

func TestGlobalMetrics(t *testing.T) {
	if Global() != nil {
		t.Error("Global() should be nil before SetGlobal")
	}

	m := New()
	SetGlobal(m)
	if Global() != m {
		t.Error("Global() did not return the set metrics")
	}

	SetGlobal(nil)
}

func TestObserveDelivery(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	ObserveDelivery("sent", "example.com", 0.2)
	ObserveDelivery("sent", "example.com", 0.3)
	ObserveDelivery("failed", "other.com", 0.1)

	sent, _ := m.DeliveriesTotal.GetMetricWithLabelValues("sent", "example.com")
	if v := counterValue(t, sent); v != 2 {
		t.Errorf("sent deliveries = %v, want 2", v)
	}
	failed, _ := m.DeliveriesTotal.GetMetricWithLabelValues("failed", "other.com")
	if v := counterValue(t, failed); v != 1 {
		t.Errorf("failed deliveries = %v, want 1", v)
	}

	var metric dto.Metric
	if err := m.SendDurationSeconds.Write(&metric); err != nil {
		t.Fatal(err)
	}
	if got := metric.GetHistogram().GetSampleCount(); got != 3 {
		t.Errorf("send duration samples = %d, want 3", got)
	}
}

func TestRunMetrics(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	SetRunActive(true)
	if v := gaugeValue(t, m.RunActive); v != 1 {
		t.Errorf("run active = %v, want 1", v)
	}
	SetRunActive(false)
	if v := gaugeValue(t, m.RunActive); v != 0 {
		t.Errorf("run active = %v, want 0", v)
	}

	IncRuns("quota")
	IncQuotaHalts()
	SetQuotaSentToday(42)
	IncTransportErrors("dial")
	AddDeliveriesReset(5)

	runs, _ := m.RunsTotal.GetMetricWithLabelValues("quota")
	if v := counterValue(t, runs); v != 1 {
		t.Errorf("runs{quota} = %v, want 1", v)
	}
	if v := counterValue(t, m.QuotaHaltsTotal); v != 1 {
		t.Errorf("quota halts = %v, want 1", v)
	}
	if v := gaugeValue(t, m.QuotaSentToday); v != 42 {
		t.Errorf("quota sent today = %v, want 42", v)
	}
	dial, _ := m.TransportErrors.GetMetricWithLabelValues("dial")
	if v := counterValue(t, dial); v != 1 {
		t.Errorf("transport errors{dial} = %v, want 1", v)
	}
	if v := counterValue(t, m.DeliveriesReset); v != 5 {
		t.Errorf("deliveries reset = %v, want 5", v)
	}
}

func TestHelpersWithoutGlobal(t *testing.T) {
	SetGlobal(nil)

	// None of these should panic
	ObserveDelivery("sent", "example.com", 1)
	SetRunActive(true)
	IncRuns("exhausted")
	IncQuotaHalts()
	SetQuotaSentToday(1)
	IncTransportErrors("verify")
	AddDeliveriesReset(1)
	IncAPIErrors("server_error")
}

func TestIncDeliveryFailures(t *testing.T) {
	m := New()
	SetGlobal(m)
	defer SetGlobal(nil)

	IncDeliveryFailures("permanent")
	IncDeliveryFailures("permanent")
	IncDeliveryFailures("temporary")

	permanent, _ := m.DeliveryFailuresTotal.GetMetricWithLabelValues("permanent")
	if v := counterValue(t, permanent); v != 2 {
		t.Errorf("permanent failures = %v, want 2", v)
	}
	temporary, _ := m.DeliveryFailuresTotal.GetMetricWithLabelValues("temporary")
	if v := counterValue(t, temporary); v != 1 {
		t.Errorf("temporary failures = %v, want 1", v)
	}
}
