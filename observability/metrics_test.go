package observability

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestTreasuryMetricsRecordLedgerActivity(t *testing.T) {
	m := Treasury()
	applied := testutil.ToFloat64(m.applied.WithLabelValues("vote"))
	m.RecordApplied(" Vote ", 7, 3*time.Millisecond)
	if got := testutil.ToFloat64(m.applied.WithLabelValues("vote")); got != applied+1 {
		t.Fatalf("expected applied counter %v, got %v", applied+1, got)
	}
	if got := testutil.ToFloat64(m.journalHeight); got != 7 {
		t.Fatalf("expected journal height 7, got %v", got)
	}

	rejected := testutil.ToFloat64(m.rejected.WithLabelValues("deposit", "unspecified"))
	m.RecordRejected("deposit", "  ")
	if got := testutil.ToFloat64(m.rejected.WithLabelValues("deposit", "unspecified")); got != rejected+1 {
		t.Fatalf("expected blank codes to be recorded as unspecified")
	}

	m.RecordPool(uint256.NewInt(400), uint256.NewInt(600))
	if got := testutil.ToFloat64(m.balance); got != 400 {
		t.Fatalf("expected balance gauge 400, got %v", got)
	}
	if got := testutil.ToFloat64(m.released); got != 600 {
		t.Fatalf("expected released gauge 600, got %v", got)
	}
}

func TestGatewayMetricsSplitErrors(t *testing.T) {
	m := GatewayMetrics()
	errorsBefore := testutil.ToFloat64(m.errors.WithLabelValues("proposals.vote", "POST", "403"))
	m.Observe("proposals.vote", "POST", 403, time.Millisecond)
	m.Observe("proposals.vote", "POST", 200, time.Millisecond)
	if got := testutil.ToFloat64(m.errors.WithLabelValues("proposals.vote", "POST", "403")); got != errorsBefore+1 {
		t.Fatalf("expected one 403 to be counted, got %v", got-errorsBefore)
	}
	throttled := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "rate_limit"))
	m.RecordThrottle("", "rate_limit")
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("unknown", "rate_limit")); got != throttled+1 {
		t.Fatalf("expected throttle under the unknown route")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *TreasuryMetrics
	m.RecordApplied("vote", 1, time.Millisecond)
	m.RecordRejected("vote", "not_authority")
	m.RecordNoop("vote")
	m.RecordCommitFailure()
	m.RecordPool(nil, nil)
	m.RecordEvent("treasury.deposit")
	if amountToFloat(nil) != 0 {
		t.Fatalf("nil amounts convert to zero")
	}
}

func TestCommitLatencyHistogramObservesSeconds(t *testing.T) {
	m := Treasury()
	var before dto.Metric
	if err := m.commitLatency.Write(&before); err != nil {
		t.Fatalf("write: %v", err)
	}
	m.RecordApplied("deposit", 1, 250*time.Millisecond)

	var after dto.Metric
	if err := m.commitLatency.Write(&after); err != nil {
		t.Fatalf("write: %v", err)
	}
	hist := after.GetHistogram()
	if got := hist.GetSampleCount() - before.GetHistogram().GetSampleCount(); got != 1 {
		t.Fatalf("expected one sample, got %d", got)
	}
	if got := hist.GetSampleSum() - before.GetHistogram().GetSampleSum(); got < 0.249 || got > 0.251 {
		t.Fatalf("expected latency recorded in seconds, got %v", got)
	}

	noops := testutil.ToFloat64(m.noops.WithLabelValues("vote"))
	m.RecordNoop("Vote")
	if got := testutil.ToFloat64(m.noops.WithLabelValues("vote")); got != noops+1 {
		t.Fatalf("expected noop counter to advance")
	}
}
