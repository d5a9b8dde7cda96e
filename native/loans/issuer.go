package loans

import (
	"errors"
	"fmt"
	"sync"

	coreerrors "assetpool/core/errors"
	"assetpool/core/types"
	"assetpool/crypto"
	"assetpool/state/bank"
)

var errNilIssuer = errors.New("loans issuer: not initialised")

// MintCapability authorises supply changes of exactly one Issuer. It is only
// obtainable from NewIssuer.
type MintCapability struct {
	issuer *Issuer
}

// Issuer controls the pegged unit supply. Units are credited to and debited
// from ledger accounts directly; there is no issuer balance.
type Issuer struct {
	mu     sync.Mutex
	asset  types.Asset
	cap    uint64
	supply uint64
	ledger bank.Ledger
}

// NewIssuer creates the issuer for asset bounded by supplyCap (zero means
// unbounded) and returns the capability required to mint or burn.
func NewIssuer(asset types.Asset, supplyCap uint64, ledger bank.Ledger) (*Issuer, *MintCapability, error) {
	if !asset.Valid() {
		return nil, nil, fmt.Errorf("loans issuer: pegged asset required")
	}
	if ledger == nil {
		return nil, nil, fmt.Errorf("loans issuer: ledger not configured")
	}
	issuer := &Issuer{asset: asset, cap: supplyCap, ledger: ledger}
	return issuer, &MintCapability{issuer: issuer}, nil
}

func (i *Issuer) Asset() types.Asset { return i.asset }

func (i *Issuer) Cap() uint64 { return i.cap }

// Supply returns the outstanding pegged units.
func (i *Issuer) Supply() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.supply
}

func (i *Issuer) authorise(capability *MintCapability) error {
	if i == nil {
		return errNilIssuer
	}
	if capability == nil || capability.issuer != i {
		return fmt.Errorf("loans issuer: capability does not belong to %s issuer: %w", i.asset, coreerrors.ErrUnauthorized)
	}
	return nil
}

// supplyCommit applies the postings of a supply change. nextSupply is the
// supply once they land.
type supplyCommit func(postings []bank.Posting, nextSupply uint64) error

func (i *Issuer) applyLedger(postings []bank.Posting, _ uint64) error {
	return bank.Apply(i.ledger, postings...)
}

// Mint credits amount pegged units to the account. The extra postings are
// applied in the same ledger batch so callers can tie collateral movements to
// the issuance.
func (i *Issuer) Mint(capability *MintCapability, to crypto.Address, amount uint64, with ...bank.Posting) error {
	return i.mint(capability, to, amount, with, i.applyLedger)
}

func (i *Issuer) mint(capability *MintCapability, to crypto.Address, amount uint64, with []bank.Posting, commit supplyCommit) error {
	if err := i.authorise(capability); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("loans issuer: mint amount must be positive: %w", coreerrors.ErrInvalidAmount)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	next := i.supply + amount
	if next < i.supply {
		return fmt.Errorf("loans issuer: supply: %w", coreerrors.ErrOverflow)
	}
	if i.cap > 0 && next > i.cap {
		return fmt.Errorf("loans issuer: minting %d exceeds cap %d (supply %d): %w", amount, i.cap, i.supply, coreerrors.ErrSupplyCapExceeded)
	}
	postings := append(append([]bank.Posting(nil), with...), bank.CreditOf(to, i.asset, amount))
	if err := commit(postings, next); err != nil {
		return err
	}
	i.supply = next
	return nil
}

// Burn debits amount pegged units from the account, applying the extra
// postings in the same batch.
func (i *Issuer) Burn(capability *MintCapability, from crypto.Address, amount uint64, with ...bank.Posting) error {
	return i.burn(capability, from, amount, with, i.applyLedger)
}

func (i *Issuer) burn(capability *MintCapability, from crypto.Address, amount uint64, with []bank.Posting, commit supplyCommit) error {
	if err := i.authorise(capability); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("loans issuer: burn amount must be positive: %w", coreerrors.ErrInvalidAmount)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if amount > i.supply {
		return fmt.Errorf("loans issuer: burning %d exceeds supply %d: %w", amount, i.supply, coreerrors.ErrInsufficientBalance)
	}
	postings := append([]bank.Posting{bank.DebitOf(from, i.asset, amount)}, with...)
	if err := commit(postings, i.supply-amount); err != nil {
		return err
	}
	i.supply -= amount
	return nil
}

// RestoreSupply resets the outstanding supply from a snapshot.
func (i *Issuer) RestoreSupply(capability *MintCapability, supply uint64) error {
	if err := i.authorise(capability); err != nil {
		return err
	}
	if i.cap > 0 && supply > i.cap {
		return fmt.Errorf("loans issuer: restored supply %d exceeds cap %d: %w", supply, i.cap, coreerrors.ErrSupplyCapExceeded)
	}
	i.mu.Lock()
	i.supply = supply
	i.mu.Unlock()
	return nil
}
