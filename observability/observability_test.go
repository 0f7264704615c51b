package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSeriesMetricsCountOutcomes(t *testing.T) {
	m := Series()
	before := testutil.ToFloat64(m.refreshes.WithLabelValues("error"))
	m.RecordRefresh(errors.New("boom"))
	m.RecordRefresh(nil)
	if got := testutil.ToFloat64(m.refreshes.WithLabelValues("error")); got != before+1 {
		t.Fatalf("expected error counter to advance by one, got %v -> %v", before, got)
	}
	m.ObservePass(time.Second, 3)
	if got := testutil.ToFloat64(m.tracked); got != 3 {
		t.Fatalf("expected tracked gauge 3, got %v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var series *SeriesMetrics
	series.RecordRefresh(nil)
	series.RecordIlliquid()
	var authz *AuthzMetrics
	authz.Observe("sign", "signed")
	var exec *ExecutionMetrics
	exec.RecordAction("sell", "confirmed")
	var http *HTTPMetrics
	http.Observe("/series", 200, time.Millisecond)
}

func TestLabelsDefaultToUnknown(t *testing.T) {
	m := Execution()
	m.RecordAction(" ", "confirmed")
	if got := testutil.ToFloat64(m.actions.WithLabelValues("unknown", "confirmed")); got < 1 {
		t.Fatalf("expected unknown verb label to be recorded")
	}
}
