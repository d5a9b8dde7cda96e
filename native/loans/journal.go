package loans

import (
	"assetpool/crypto"
	"assetpool/state/bank"
)

// Journal persists a mutation's postings together with the book snapshot that
// results from it. It must write to the same ledger the book was built with.
type Journal interface {
	CommitLoanBook(s Snapshot, postings []bank.Posting) error
}

// SetJournal routes later mutations through j instead of applying postings to
// the ledger directly.
func (b *Book) SetJournal(j Journal) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.journal = j
}

// commitLocked returns the hook that lands a change to the loan set. Without
// a journal the postings go to the ledger and apply runs afterwards. With one,
// apply runs first so the snapshot includes it, and undo reverts it when the
// write fails. Callers must hold b.mu for as long as the hook may run.
func (b *Book) commitLocked(apply, undo func()) supplyCommit {
	return func(postings []bank.Posting, supply uint64) error {
		if b.journal == nil {
			if err := bank.Apply(b.ledger, postings...); err != nil {
				return err
			}
			apply()
			return nil
		}
		apply()
		snap := Snapshot{Loans: b.listLocked(crypto.Address{}), Supply: supply}
		if err := b.journal.CommitLoanBook(snap, postings); err != nil {
			undo()
			return err
		}
		return nil
	}
}
