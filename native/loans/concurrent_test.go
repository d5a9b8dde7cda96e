package loans

import (
	"sync"
	"testing"

	"assetpool/crypto"
	"assetpool/state/bank"
)

type ledgerJournal struct {
	mu     sync.Mutex
	ledger bank.Ledger
	last   Snapshot
}

func (j *ledgerJournal) CommitLoanBook(s Snapshot, postings []bank.Posting) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := bank.Apply(j.ledger, postings...); err != nil {
		return err
	}
	j.last = s
	return nil
}

func TestConcurrentCreateAndRepay(t *testing.T) {
	for _, journaled := range []bool{false, true} {
		name := "ledger"
		if journaled {
			name = "journal"
		}
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, 0)
			var journal *ledgerJournal
			if journaled {
				journal = &ledgerJournal{ledger: f.ledger}
				f.book.SetJournal(journal)
			}
			var borrowers []crypto.Address
			for fill := byte(0x30); fill < 0x36; fill++ {
				borrower := testAddress(fill)
				if err := f.ledger.Credit(borrower, collateralAsset, 10_000); err != nil {
					t.Fatalf("fund: %v", err)
				}
				borrowers = append(borrowers, borrower)
			}

			var wg sync.WaitGroup
			errs := make(chan error, 1024)
			for _, borrower := range borrowers {
				wg.Add(1)
				go func(borrower crypto.Address) {
					defer wg.Done()
					for n := 0; n < 20; n++ {
						loan, err := f.book.CreateLoan(borrower, 150, 100, day, 0, 1)
						if err != nil {
							errs <- err
							continue
						}
						if n%2 == 0 {
							continue
						}
						if _, err := f.book.RepayLoan(borrower, loan.ID, loan.Principal, 2); err != nil {
							errs <- err
						}
					}
				}(borrower)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				t.Fatalf("concurrent operation failed: %v", err)
			}

			active := f.book.List(crypto.Address{})
			if len(active) != len(borrowers)*10 {
				t.Fatalf("expected %d active loans, got %d", len(borrowers)*10, len(active))
			}
			var principal, collateral uint64
			for _, loan := range active {
				principal += loan.Principal
				collateral += loan.Collateral
			}
			var minted uint64
			for _, borrower := range borrowers {
				minted += f.balance(t, borrower, peggedAsset)
			}
			supply := f.issuer.Supply()
			if supply != principal || supply != minted {
				t.Fatalf("supply %d, active principal %d, pegged held %d", supply, principal, minted)
			}
			if got := f.balance(t, f.book.Config().Custody, collateralAsset); got != collateral {
				t.Fatalf("custody holds %d collateral, active loans lock %d", got, collateral)
			}
			if journal != nil {
				journal.mu.Lock()
				last := journal.last
				journal.mu.Unlock()
				if last.Supply != supply || len(last.Loans) != len(active) {
					t.Fatalf("last committed snapshot has %d loans and supply %d, live has %d and %d",
						len(last.Loans), last.Supply, len(active), supply)
				}
			}
		})
	}
}
