package pool

import (
	"sort"

	"assetpool/core/types"
	"assetpool/crypto"
	"assetpool/state/bank"
)

// Journal persists a mutation's postings together with the pool snapshot that
// results from it. It must write to the same ledger the pool was built with.
type Journal interface {
	CommitPool(assetA, assetB types.Asset, s Snapshot, postings []bank.Posting) error
}

// SetJournal routes later mutations through j instead of applying postings to
// the ledger directly.
func (p *Pool) SetJournal(j Journal) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.journal = j
}

// commitLocked applies postings and mutate as one step. With a journal the
// in-memory change is made first and undone when the write fails. Callers
// must hold p.mu.
func (p *Pool) commitLocked(postings []bank.Posting, mutate func()) error {
	if p.journal == nil {
		if len(postings) > 0 {
			if err := bank.Apply(p.ledger, postings...); err != nil {
				return err
			}
		}
		mutate()
		return nil
	}
	prev := p.snapshotLocked()
	mutate()
	if err := p.journal.CommitPool(p.assetA, p.assetB, p.snapshotLocked(), postings); err != nil {
		p.restoreLocked(prev)
		return err
	}
	return nil
}

func (p *Pool) snapshotLocked() Snapshot {
	positions := make([]Position, 0, len(p.shares))
	for provider, shares := range p.shares {
		positions = append(positions, Position{Provider: provider, Shares: shares})
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].Provider.String() < positions[j].Provider.String()
	})
	return Snapshot{
		ReserveA:  p.reserveA,
		ReserveB:  p.reserveB,
		Supply:    p.supply,
		FeeBps:    p.feeBps,
		Positions: positions,
	}
}

func (p *Pool) restoreLocked(s Snapshot) {
	shares := make(map[crypto.Address]uint64, len(s.Positions))
	for _, pos := range s.Positions {
		if pos.Shares > 0 {
			shares[pos.Provider] += pos.Shares
		}
	}
	p.reserveA, p.reserveB, p.supply, p.feeBps = s.ReserveA, s.ReserveB, s.Supply, s.FeeBps
	p.shares = shares
}
