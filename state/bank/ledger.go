package bank

import (
	"fmt"
	"math"

	coreerrors "assetpool/core/errors"
	"assetpool/core/types"
	"assetpool/crypto"
)

// Ledger is the narrow custody contract the core consumes. Debits fail with
// ErrInsufficientBalance when the account cannot cover the amount.
type Ledger interface {
	BalanceOf(account crypto.Address, asset types.Asset) (uint64, error)
	Debit(account crypto.Address, asset types.Asset, amount uint64) error
	Credit(account crypto.Address, asset types.Asset, amount uint64) error
}

// Batcher is implemented by ledgers able to apply several postings as one
// atomic unit.
type Batcher interface {
	Apply(postings []Posting) error
}

// Posting is a single leg of a balance movement.
type Posting struct {
	Account crypto.Address
	Asset   types.Asset
	Amount  uint64
	Debit   bool
}

// DebitOf builds a debit leg.
func DebitOf(account crypto.Address, asset types.Asset, amount uint64) Posting {
	return Posting{Account: account, Asset: asset, Amount: amount, Debit: true}
}

// CreditOf builds a credit leg.
func CreditOf(account crypto.Address, asset types.Asset, amount uint64) Posting {
	return Posting{Account: account, Asset: asset, Amount: amount}
}

// Transfer returns the two legs moving amount of asset from one account to
// another.
func Transfer(from, to crypto.Address, asset types.Asset, amount uint64) []Posting {
	return []Posting{DebitOf(from, asset, amount), CreditOf(to, asset, amount)}
}

// Apply executes the postings in order as a single unit. Ledgers implementing
// Batcher are trusted to do so atomically; for any other ledger the legs
// already applied are compensated in reverse order when a later leg fails.
func Apply(l Ledger, postings ...Posting) error {
	if l == nil {
		return fmt.Errorf("bank: ledger not configured")
	}
	if b, ok := l.(Batcher); ok {
		return b.Apply(postings)
	}
	applied := make([]Posting, 0, len(postings))
	for _, p := range postings {
		if err := applyOne(l, p); err != nil {
			for i := len(applied) - 1; i >= 0; i-- {
				reverse := applied[i]
				reverse.Debit = !reverse.Debit
				_ = applyOne(l, reverse)
			}
			return err
		}
		applied = append(applied, p)
	}
	return nil
}

func applyOne(l Ledger, p Posting) error {
	if p.Amount == 0 {
		return nil
	}
	if p.Debit {
		return l.Debit(p.Account, p.Asset, p.Amount)
	}
	return l.Credit(p.Account, p.Asset, p.Amount)
}

type balanceKey struct {
	account crypto.Address
	asset   types.Asset
}

// applyToScratch runs the postings against a scratch view of the touched
// balances. load is consulted the first time a balance is needed.
func applyToScratch(postings []Posting, load func(balanceKey) (uint64, error)) (map[balanceKey]uint64, error) {
	scratch := make(map[balanceKey]uint64, len(postings))
	for _, p := range postings {
		if p.Amount == 0 {
			continue
		}
		if !p.Asset.Valid() {
			return nil, fmt.Errorf("bank: asset required: %w", coreerrors.ErrInvalidAmount)
		}
		key := balanceKey{account: p.Account, asset: p.Asset}
		current, ok := scratch[key]
		if !ok {
			loaded, err := load(key)
			if err != nil {
				return nil, err
			}
			current = loaded
		}
		if p.Debit {
			if current < p.Amount {
				return nil, fmt.Errorf("bank: %s holds %d %s, needs %d: %w", p.Account, current, p.Asset, p.Amount, coreerrors.ErrInsufficientBalance)
			}
			current -= p.Amount
		} else {
			if current > math.MaxUint64-p.Amount {
				return nil, fmt.Errorf("bank: credit of %d %s: %w", p.Amount, p.Asset, coreerrors.ErrOverflow)
			}
			current += p.Amount
		}
		scratch[key] = current
	}
	return scratch, nil
}
