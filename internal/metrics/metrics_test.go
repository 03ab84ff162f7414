package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/liamcoop/propagation/internal/logger"
)

func TestObserveOutcome(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOutcome("RuleApplied", 20*time.Millisecond)
	m.ObserveOutcome("RuleApplied", 30*time.Millisecond)
	m.ObserveOutcome("ParentExcluded", time.Millisecond)

	if got := testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("RuleApplied")); got != 2 {
		t.Errorf("RuleApplied count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.OutcomesTotal.WithLabelValues("ParentExcluded")); got != 1 {
		t.Errorf("ParentExcluded count = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.Duration); n != 2 {
		t.Errorf("expected 2 duration series, got %d", n)
	}
}

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordInvalidEvent()
	m.RecordRateLimited()
	m.RecordRateLimited()
	m.RecordRuleDocumentWrite("put")

	if got := testutil.ToFloat64(m.InvalidEventsTotal); got != 1 {
		t.Errorf("invalid events = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.RateLimitedTotal); got != 2 {
		t.Errorf("rate limited = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.RuleDocumentWrites.WithLabelValues("put")); got != 1 {
		t.Errorf("put writes = %v, want 1", got)
	}
}

func TestLogCountersExported(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	logger.TotalErrors.Add(1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() failed: %v", err)
	}

	for _, family := range families {
		if family.GetName() != "propagation_log_errors_total" {
			continue
		}
		if v := family.GetMetric()[0].GetCounter().GetValue(); v < 1 {
			t.Errorf("propagation_log_errors_total = %v, want at least 1", v)
		}
		return
	}
	t.Error("propagation_log_errors_total not registered")
}

func TestDefaultIsSingleton(t *testing.T) {
	if Default() != Default() {
		t.Error("Default() should return the same instance")
	}
}
