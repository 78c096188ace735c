package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestJobLifecycle(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordJobStart()
	m.RecordJobStart()
	if got := testutil.ToFloat64(m.JobsActive); got != 2 {
		t.Fatalf("active = %v, want 2", got)
	}

	m.RecordJobEnd(false)
	m.RecordJobEnd(true)
	if got := testutil.ToFloat64(m.JobsActive); got != 0 {
		t.Fatalf("active = %v, want 0", got)
	}
	if got := testutil.ToFloat64(m.JobsFailed); got != 1 {
		t.Fatalf("failed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.JobsStarted); got != 2 {
		t.Fatalf("started = %v, want 2", got)
	}
}

func TestDecisionCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordVendorEvent(true)
	m.RecordVendorEvent(false)
	m.RecordForwarded(true)
	m.RecordSuppressed("below_threshold")
	m.RecordSuppressed("below_threshold")

	if got := testutil.ToFloat64(m.VendorEvents.WithLabelValues("final")); got != 1 {
		t.Fatalf("vendor final = %v", got)
	}
	if got := testutil.ToFloat64(m.VendorEvents.WithLabelValues("interim")); got != 1 {
		t.Fatalf("vendor interim = %v", got)
	}
	if got := testutil.ToFloat64(m.TranscriptsForwarded.WithLabelValues("final")); got != 1 {
		t.Fatalf("forwarded final = %v", got)
	}
	if got := testutil.ToFloat64(m.TranscriptsSuppressed.WithLabelValues("below_threshold")); got != 2 {
		t.Fatalf("suppressed = %v", got)
	}
}

func TestDefaultIsSingleton(t *testing.T) {
	if Default() != Default() {
		t.Fatal("Default must return the same instance")
	}
}
