package events

import (
	"bytes"
	"testing"

	"assetpool/core/types"
	"assetpool/crypto"
)

func testAddress(fill byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{fill}, 20))
}

func TestSwapEventAttributes(t *testing.T) {
	trader := testAddress(0x01)
	evt := Swap{
		Trader:      trader,
		Direction:   types.AToB,
		AssetIn:     types.NewAsset("soil"),
		AssetOut:    types.NewAsset("h2o"),
		AmountIn:    100,
		AmountOut:   90,
		ExpectedOut: 100,
		Timestamp:   42,
	}.Event()
	if evt.Type != TypeSwap {
		t.Fatalf("unexpected type: %s", evt.Type)
	}
	if evt.Attributes["trader"] != trader.String() {
		t.Fatalf("unexpected trader attr: %s", evt.Attributes["trader"])
	}
	if evt.Attributes["assetIn"] != "SOIL" || evt.Attributes["assetOut"] != "H2O" {
		t.Fatalf("unexpected assets: %+v", evt.Attributes)
	}
	if evt.Attributes["amountOut"] != "90" || evt.Attributes["direction"] != "a_to_b" {
		t.Fatalf("unexpected attrs: %+v", evt.Attributes)
	}
}

func TestLoanCreatedRecord(t *testing.T) {
	borrower := testAddress(0x02)
	rec := LoanCreated{
		LoanID:     "loan-1",
		Borrower:   borrower,
		Collateral: 150,
		Principal:  100,
		DueTime:    5_000,
		Timestamp:  1_000,
	}.Record()
	if rec.Kind != TypeLoanCreated || rec.Actor != borrower.String() {
		t.Fatalf("unexpected record header: %+v", rec)
	}
	if rec.Amounts["collateral"] != 150 || rec.Amounts["principal"] != 100 {
		t.Fatalf("unexpected amounts: %+v", rec.Amounts)
	}
	keys := rec.AmountKeys()
	if len(keys) != 3 || keys[0] != "collateral" || keys[2] != "principal" {
		t.Fatalf("unexpected key order: %v", keys)
	}
}

func TestFanoutDeliversToEveryEmitter(t *testing.T) {
	first := &Recorder{}
	second := &Recorder{}
	var fn int
	fanout := Fanout{first, nil, second, EmitterFunc(func(Event) { fn++ })}
	fanout.Emit(PriceUpdated{Asset: "soil", Price: 1_000_000, Timestamp: 7})
	if len(first.Events()) != 1 || len(second.Events()) != 1 || fn != 1 {
		t.Fatalf("expected every emitter to receive the event")
	}
	first.Reset()
	if len(first.Events()) != 0 {
		t.Fatalf("expected reset to clear events")
	}
}

func TestZeroAddressRendersEmpty(t *testing.T) {
	evt := PriceUpdated{Asset: " soil ", Price: 5}.Event()
	if evt.Attributes["feeder"] != "" {
		t.Fatalf("expected empty feeder, got %q", evt.Attributes["feeder"])
	}
	if evt.Attributes["asset"] != "SOIL" {
		t.Fatalf("unexpected asset attr: %q", evt.Attributes["asset"])
	}
}
