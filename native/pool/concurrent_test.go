package pool

import (
	"errors"
	"sync"
	"testing"

	coreerrors "assetpool/core/errors"
	"assetpool/core/types"
	"assetpool/crypto"
	"assetpool/native/oracle"
	"assetpool/state/bank"
)

// ledgerJournal applies postings to a ledger and remembers the last snapshot
// it was handed.
type ledgerJournal struct {
	mu      sync.Mutex
	ledger  bank.Ledger
	last    Snapshot
	commits int
}

func (j *ledgerJournal) CommitPool(_, _ types.Asset, s Snapshot, postings []bank.Posting) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := bank.Apply(j.ledger, postings...); err != nil {
		return err
	}
	j.last = s
	j.commits++
	return nil
}

func TestConcurrentSwapsAndLiquidity(t *testing.T) {
	for _, journaled := range []bool{false, true} {
		name := "ledger"
		if journaled {
			name = "journal"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 30)
			var journal *ledgerJournal
			if journaled {
				journal = &ledgerJournal{ledger: f.ledger}
				f.pool.SetJournal(journal)
			}
			f.seed(t, 100_000, 100_000)

			traders := []crypto.Address{f.trader}
			for fill := byte(0x20); fill < 0x24; fill++ {
				trader := testAddress(fill)
				if err := f.ledger.Credit(trader, assetA, 100_000); err != nil {
					t.Fatalf("fund: %v", err)
				}
				if err := f.ledger.Credit(trader, assetB, 100_000); err != nil {
					t.Fatalf("fund: %v", err)
				}
				traders = append(traders, trader)
			}
			totalA := f.balance(t, f.provider, assetA) + f.balance(t, f.pool.State().Custody, assetA)
			totalB := f.balance(t, f.provider, assetB) + f.balance(t, f.pool.State().Custody, assetB)
			for _, trader := range traders {
				totalA += f.balance(t, trader, assetA)
				totalB += f.balance(t, trader, assetB)
			}

			price := stubOracle{price: 1_000_000}
			var wg sync.WaitGroup
			errs := make(chan error, 1024)
			for i, trader := range traders {
				wg.Add(1)
				go func(i int, trader crypto.Address) {
					defer wg.Done()
					for n := 0; n < 50; n++ {
						dir := types.AToB
						if (n+i)%2 == 1 {
							dir = types.BToA
						}
						req := SwapRequest{Trader: trader, AmountIn: 100, Direction: dir, MaxSlippageBps: BasisPoints, Now: 2}
						if _, err := f.pool.Swap(req, price); err != nil {
							errs <- err
						}
					}
				}(i, trader)
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 50; n++ {
					minted, err := f.pool.AddLiquidity(f.provider, 1_000, 1_000, 2)
					if err != nil {
						errs <- err
						continue
					}
					if _, _, err := f.pool.RemoveLiquidity(f.provider, minted, 2); err != nil {
						errs <- err
					}
				}
			}()
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("concurrent operation failed: %v", err)
			}

			st := f.pool.State()
			if got := f.balance(t, st.Custody, assetA); got != st.ReserveA {
				t.Fatalf("custody holds %d of asset A, reserve is %d", got, st.ReserveA)
			}
			if got := f.balance(t, st.Custody, assetB); got != st.ReserveB {
				t.Fatalf("custody holds %d of asset B, reserve is %d", got, st.ReserveB)
			}
			sumA := f.balance(t, f.provider, assetA) + st.ReserveA
			sumB := f.balance(t, f.provider, assetB) + st.ReserveB
			for _, trader := range traders {
				sumA += f.balance(t, trader, assetA)
				sumB += f.balance(t, trader, assetB)
			}
			if sumA != totalA || sumB != totalB {
				t.Fatalf("balances not conserved: A %d->%d B %d->%d", totalA, sumA, totalB, sumB)
			}
			var shares uint64
			for _, pos := range f.pool.Snapshot().Positions {
				shares += pos.Shares
			}
			if shares != st.Supply {
				t.Fatalf("positions sum to %d, supply is %d", shares, st.Supply)
			}
			if journal != nil {
				journal.mu.Lock()
				last := journal.last
				journal.mu.Unlock()
				if last.ReserveA != st.ReserveA || last.ReserveB != st.ReserveB || last.Supply != st.Supply {
					t.Fatalf("last committed snapshot %+v behind live state %+v", last, st)
				}
			}
		})
	}
}

func TestSwapRejectsPriceOlderThanWindow(t *testing.T) {
	f := newFixture(t, 30)
	f.seed(t, 1_000, 1_000)
	feeder := testAddress(0xfe)
	quotes := oracle.New(assetA, feeder)
	if err := quotes.UpdatePrice(feeder, 1_000_000, 0); err != nil {
		t.Fatalf("price: %v", err)
	}
	beforeA := f.balance(t, f.trader, assetA)

	req := SwapRequest{Trader: f.trader, AmountIn: 100, Direction: types.AToB, MaxSlippageBps: 1_000, Now: 3_700_000}
	if _, err := f.pool.Swap(req, quotes); !errors.Is(err, coreerrors.ErrStalePrice) {
		t.Fatalf("expected stale price, got %v", err)
	}
	if f.balance(t, f.trader, assetA) != beforeA {
		t.Fatalf("stale swap moved trader balance")
	}
	if st := f.pool.State(); st.ReserveA != 1_000 || st.ReserveB != 1_000 {
		t.Fatalf("stale swap moved reserves: %+v", st)
	}

	req.Now = StaleWindowMs
	out, err := f.pool.Swap(req, quotes)
	if err != nil {
		t.Fatalf("swap at window edge: %v", err)
	}
	if out != 90 {
		t.Fatalf("expected 90 out, got %d", out)
	}
}
