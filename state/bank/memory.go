package bank

import (
	"sort"
	"sync"

	"assetpool/core/types"
	"assetpool/crypto"
)

// MemLedger keeps balances in memory. It is safe for concurrent use.
type MemLedger struct {
	mu       sync.RWMutex
	balances map[balanceKey]uint64
}

// NewMemLedger constructs an empty in-memory ledger.
func NewMemLedger() *MemLedger {
	return &MemLedger{balances: make(map[balanceKey]uint64)}
}

func (l *MemLedger) BalanceOf(account crypto.Address, asset types.Asset) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{account: account, asset: asset}], nil
}

func (l *MemLedger) Debit(account crypto.Address, asset types.Asset, amount uint64) error {
	return l.Apply([]Posting{DebitOf(account, asset, amount)})
}

func (l *MemLedger) Credit(account crypto.Address, asset types.Asset, amount uint64) error {
	return l.Apply([]Posting{CreditOf(account, asset, amount)})
}

// Apply implements Batcher.
func (l *MemLedger) Apply(postings []Posting) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	scratch, err := applyToScratch(postings, func(key balanceKey) (uint64, error) {
		return l.balances[key], nil
	})
	if err != nil {
		return err
	}
	for key, value := range scratch {
		if value == 0 {
			delete(l.balances, key)
			continue
		}
		l.balances[key] = value
	}
	return nil
}

// Balances returns every non-zero balance held by the account.
func (l *MemLedger) Balances(account crypto.Address) (map[types.Asset]uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[types.Asset]uint64)
	for key, value := range l.balances {
		if key.account == account && value > 0 {
			out[key.asset] = value
		}
	}
	return out, nil
}

// Holders lists the accounts holding a non-zero balance of asset, sorted by
// their bech32 form.
func (l *MemLedger) Holders(asset types.Asset) []crypto.Address {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]crypto.Address, 0)
	for key, value := range l.balances {
		if key.asset == asset && value > 0 {
			out = append(out, key.account)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
