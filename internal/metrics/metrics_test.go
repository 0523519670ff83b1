package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/agentic-research/dmpath/internal/metrics"
)

func TestNewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	if m == nil {
		t.Fatal("NewWithRegistry returned nil")
	}
	if m.ModuleUpdates == nil {
		t.Error("ModuleUpdates is nil")
	}
	if m.PathTransitions == nil {
		t.Error("PathTransitions is nil")
	}
	if m.ConfigReloads == nil {
		t.Error("ConfigReloads is nil")
	}
}

func TestModuleUpdates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.ModuleUpdates.WithLabelValues("sim").Inc()
	m.ModuleUpdates.WithLabelValues("sim").Inc()
	m.ModuleUpdates.WithLabelValues("feed.weather").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "dmpath_module_updates_total" {
			found = true
			if len(f.GetMetric()) != 2 {
				t.Errorf("expected 2 metric series, got %d", len(f.GetMetric()))
			}
		}
	}
	if !found {
		t.Error("dmpath_module_updates_total metric not found")
	}
	if got := value(t, m.ModuleUpdates.WithLabelValues("sim")); got != 2 {
		t.Errorf("sim updates = %v, want 2", got)
	}
}

func TestPathTransitions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	m.PathTransitions.WithLabelValues("invalidated").Inc()
	m.PathTransitions.WithLabelValues("validated").Add(3)

	if got := value(t, m.PathTransitions.WithLabelValues("validated")); got != 3 {
		t.Errorf("validated = %v, want 3", got)
	}
}

func TestNopCollectorsAreIndependent(t *testing.T) {
	a := metrics.Nop()
	b := metrics.Nop()
	a.ModulesEnabled.Set(2)
	if got := value(t, b.ModulesEnabled); got != 0 {
		t.Errorf("independent collector = %v, want 0", got)
	}
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	switch {
	case pb.Counter != nil:
		return pb.GetCounter().GetValue()
	case pb.Gauge != nil:
		return pb.GetGauge().GetValue()
	}
	t.Fatalf("unsupported metric %v", m.Desc())
	return 0
}
