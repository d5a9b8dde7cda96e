package oracle

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	coreerrors "assetpool/core/errors"
	"assetpool/core/events"
	"assetpool/core/types"
	"assetpool/crypto"
	nativecommon "assetpool/native/common"
)

const staleWindow = 3_600_000

func testAddress(fill byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{fill}, 20))
}

func newTestOracle() (*Oracle, crypto.Address, *events.Recorder) {
	feeder := testAddress(0xfe)
	o := New(types.NewAsset("soil"), feeder)
	rec := &events.Recorder{}
	o.SetEmitter(rec)
	return o, feeder, rec
}

func TestUpdatePriceRequiresFeeder(t *testing.T) {
	o, _, rec := newTestOracle()
	err := o.UpdatePrice(testAddress(0x01), 1_000_000, 10)
	if !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if price, _ := o.ReadPrice(); price != 0 {
		t.Fatalf("price changed by unauthorized caller: %d", price)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("unexpected events emitted")
	}
}

func TestUpdatePriceRejectsZero(t *testing.T) {
	o, feeder, _ := newTestOracle()
	if err := o.UpdatePrice(feeder, 0, 10); !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestUpdatePriceEmitsEvent(t *testing.T) {
	o, feeder, rec := newTestOracle()
	if err := o.UpdatePrice(feeder, 2_500_000, 99); err != nil {
		t.Fatalf("update: %v", err)
	}
	price, last := o.ReadPrice()
	if price != 2_500_000 || last != 99 {
		t.Fatalf("unexpected state price=%d last=%d", price, last)
	}
	emitted := rec.Events()
	if len(emitted) != 1 {
		t.Fatalf("expected one event, got %d", len(emitted))
	}
	evt, ok := emitted[0].(events.PriceUpdated)
	if !ok || evt.Price != 2_500_000 || evt.Timestamp != 99 || evt.Asset != "SOIL" {
		t.Fatalf("unexpected event: %#v", emitted[0])
	}
}

func TestFreshPriceWindow(t *testing.T) {
	o, feeder, _ := newTestOracle()
	if _, err := o.FreshPrice(0, staleWindow); !errors.Is(err, coreerrors.ErrStalePrice) {
		t.Fatalf("expected stale before first update, got %v", err)
	}
	if err := o.UpdatePrice(feeder, 1_000_000, 0); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := o.FreshPrice(staleWindow, staleWindow); err != nil {
		t.Fatalf("price at the window edge should be fresh: %v", err)
	}
	// A price published at t=0 and read at t=3_700_000 is past the hour.
	if _, err := o.FreshPrice(3_700_000, staleWindow); !errors.Is(err, coreerrors.ErrStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}
}

func TestPausedOracleRejectsUpdates(t *testing.T) {
	o, feeder, _ := newTestOracle()
	o.SetPauses(nativecommon.NewPauseSet(nativecommon.ModuleOracle))
	if err := o.UpdatePrice(feeder, 1, 1); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
}

func TestSnapshotRestore(t *testing.T) {
	o, feeder, _ := newTestOracle()
	if err := o.UpdatePrice(feeder, 7, 70); err != nil {
		t.Fatalf("update: %v", err)
	}
	snap := o.Snapshot()
	restored := New(types.NewAsset("soil"), feeder)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if price, last := restored.ReadPrice(); price != 7 || last != 70 {
		t.Fatalf("unexpected restored state %d/%d", price, last)
	}
	other := New(types.NewAsset("h2o"), feeder)
	if err := other.Restore(snap); err == nil {
		t.Fatalf("expected asset mismatch error")
	}
}

func TestConcurrentUpdatesPublishWholeQuotes(t *testing.T) {
	o, feeder, _ := newTestOracle()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for n := 1; n <= 200; n++ {
				last := uint64(w*1_000 + n)
				if err := o.UpdatePrice(feeder, last*10, last); err != nil {
					t.Errorf("update: %v", err)
					return
				}
			}
		}(w)
	}
	torn := make(chan [2]uint64, 1)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 0; n < 500; n++ {
				price, last := o.ReadPrice()
				if price != last*10 {
					select {
					case torn <- [2]uint64{price, last}:
					default:
					}
					return
				}
			}
		}()
	}
	wg.Wait()
	select {
	case pair := <-torn:
		t.Fatalf("read price %d with timestamp %d from different updates", pair[0], pair[1])
	default:
	}
}
