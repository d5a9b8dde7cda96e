package observability

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"assetpool/core/events"
)

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	m.Observe("pool", "swap", 200, 5*time.Millisecond)
	m.Observe("pool", "swap", 409, time.Millisecond)
	if got := testutil.ToFloat64(m.errors.WithLabelValues("pool", "swap", "409")); got < 1 {
		t.Fatalf("expected error counter, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("pool", "swap", "success")); got < 1 {
		t.Fatalf("expected success counter, got %v", got)
	}
}

func TestPoolMetricsRecordSwap(t *testing.T) {
	m := Pool()
	before := testutil.ToFloat64(m.volume.WithLabelValues("SOIL"))
	m.RecordSwap("a_to_b", "soil", 100, nil)
	m.RecordSwap("a_to_b", "soil", 50, errors.New("slippage"))
	if got := testutil.ToFloat64(m.volume.WithLabelValues("SOIL")); got != before+100 {
		t.Fatalf("expected volume to grow by 100, got %v", got-before)
	}
	m.SetReserves("soil", 1100, "h2o", 910, 1000)
	if got := testutil.ToFloat64(m.reserves.WithLabelValues("H2O")); got != 910 {
		t.Fatalf("unexpected reserve gauge %v", got)
	}
}

func TestEventMetricsCountsKinds(t *testing.T) {
	m := Events()
	before := testutil.ToFloat64(m.events.WithLabelValues(events.TypePriceUpdated))
	var emitter events.Emitter = m
	emitter.Emit(events.PriceUpdated{Asset: "soil", Price: 1})
	if got := testutil.ToFloat64(m.events.WithLabelValues(events.TypePriceUpdated)); got != before+1 {
		t.Fatalf("expected event counted")
	}
}

func TestOracleAndLoanGauges(t *testing.T) {
	o := Oracle()
	o.RecordPrice("soil", 1_500_000)
	o.RecordFreshness("soil", 90*time.Second)
	if got := testutil.ToFloat64(o.age.WithLabelValues("SOIL")); got != 90 {
		t.Fatalf("unexpected age %v", got)
	}
	l := Loans()
	l.SetBook(2, 200, 300, 250)
	if got := testutil.ToFloat64(l.supply); got != 250 {
		t.Fatalf("unexpected supply %v", got)
	}
}
