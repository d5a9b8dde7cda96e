package pool

import (
	"errors"
	"fmt"
	"sync"

	coreerrors "assetpool/core/errors"
	"assetpool/core/events"
	"assetpool/core/types"
	"assetpool/crypto"
	nativecommon "assetpool/native/common"
	"assetpool/state/bank"
)

var (
	errNilPool      = errors.New("pool: not initialised")
	errNilLedger    = errors.New("pool: ledger not configured")
	errSameAsset    = errors.New("pool: assets must differ")
	errMissingAsset = errors.New("pool: both assets required")
)

const moduleName = nativecommon.ModulePool

// Config describes a two-asset pool.
type Config struct {
	AssetA types.Asset
	AssetB types.Asset
	FeeBps uint64
	// Admin may change the fee.
	Admin crypto.Address
	// Custody holds the reserves on the ledger. Defaults to the pool module
	// address.
	Custody crypto.Address
}

// State is a point-in-time view of the reserves.
type State struct {
	AssetA   types.Asset
	AssetB   types.Asset
	ReserveA uint64
	ReserveB uint64
	Supply   uint64
	FeeBps   uint64
	Custody  crypto.Address
	Admin    crypto.Address
}

// Position is a provider's share balance.
type Position struct {
	Provider crypto.Address
	Shares   uint64
}

// Snapshot is the persisted view of a pool.
type Snapshot struct {
	ReserveA  uint64
	ReserveB  uint64
	Supply    uint64
	FeeBps    uint64
	Positions []Position
}

// Pool is a constant-product market between two assets. Reserves are held by
// the custody account on the ledger and mirrored in memory.
type Pool struct {
	mu       sync.Mutex
	assetA   types.Asset
	assetB   types.Asset
	custody  crypto.Address
	admin    crypto.Address
	feeBps   uint64
	reserveA uint64
	reserveB uint64
	supply   uint64
	shares   map[crypto.Address]uint64

	ledger  bank.Ledger
	journal Journal
	pauses  nativecommon.PauseView
	emitter events.Emitter
}

// New constructs an empty pool over the supplied ledger.
func New(cfg Config, ledger bank.Ledger) (*Pool, error) {
	if ledger == nil {
		return nil, errNilLedger
	}
	if !cfg.AssetA.Valid() || !cfg.AssetB.Valid() {
		return nil, errMissingAsset
	}
	if cfg.AssetA == cfg.AssetB {
		return nil, errSameAsset
	}
	if cfg.FeeBps > MaxFeeBps {
		return nil, fmt.Errorf("pool: fee %d bps above %d: %w", cfg.FeeBps, MaxFeeBps, coreerrors.ErrInvalidAmount)
	}
	custody := cfg.Custody
	if custody.IsZero() {
		custody = crypto.ModuleAddress(moduleName)
	}
	return &Pool{
		assetA:  cfg.AssetA,
		assetB:  cfg.AssetB,
		custody: custody,
		admin:   cfg.Admin,
		feeBps:  cfg.FeeBps,
		shares:  make(map[crypto.Address]uint64),
		ledger:  ledger,
		emitter: events.NoopEmitter{},
	}, nil
}

func (p *Pool) SetPauses(pauses nativecommon.PauseView) {
	if p == nil {
		return
	}
	p.pauses = pauses
}

func (p *Pool) SetEmitter(emitter events.Emitter) {
	if p == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	p.emitter = emitter
}

// State returns the current reserves and configuration.
func (p *Pool) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return State{
		AssetA:   p.assetA,
		AssetB:   p.assetB,
		ReserveA: p.reserveA,
		ReserveB: p.reserveB,
		Supply:   p.supply,
		FeeBps:   p.feeBps,
		Custody:  p.custody,
		Admin:    p.admin,
	}
}

// Shares returns the provider's share balance.
func (p *Pool) Shares(provider crypto.Address) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shares[provider]
}

// AddLiquidity deposits both assets and mints shares to the provider.
func (p *Pool) AddLiquidity(provider crypto.Address, amountA, amountB uint64, now uint64) (uint64, error) {
	if p == nil {
		return 0, errNilPool
	}
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return 0, err
	}
	if amountA == 0 || amountB == 0 {
		return 0, fmt.Errorf("pool: both deposit amounts must be positive: %w", coreerrors.ErrInvalidAmount)
	}

	p.mu.Lock()
	minted, err := mintAmount(amountA, amountB, p.reserveA, p.reserveB, p.supply)
	if err != nil {
		p.mu.Unlock()
		return 0, err
	}
	if minted == 0 {
		p.mu.Unlock()
		return 0, fmt.Errorf("pool: deposit mints no shares: %w", coreerrors.ErrInvalidAmount)
	}
	nextA, err := addChecked(p.reserveA, amountA)
	if err != nil {
		p.mu.Unlock()
		return 0, err
	}
	nextB, err := addChecked(p.reserveB, amountB)
	if err != nil {
		p.mu.Unlock()
		return 0, err
	}
	nextSupply, err := addChecked(p.supply, minted)
	if err != nil {
		p.mu.Unlock()
		return 0, err
	}
	postings := append(
		bank.Transfer(provider, p.custody, p.assetA, amountA),
		bank.Transfer(provider, p.custody, p.assetB, amountB)...,
	)
	err = p.commitLocked(postings, func() {
		p.reserveA, p.reserveB, p.supply = nextA, nextB, nextSupply
		p.shares[provider] += minted
	})
	if err != nil {
		p.mu.Unlock()
		return 0, err
	}
	emitter := p.emitter
	p.mu.Unlock()

	emitter.Emit(events.LiquidityAdded{
		Provider:  provider,
		AmountA:   amountA,
		AmountB:   amountB,
		Minted:    minted,
		Timestamp: now,
	})
	return minted, nil
}

// RemoveLiquidity burns lp shares and pays out the pro-rata reserves.
func (p *Pool) RemoveLiquidity(provider crypto.Address, lp uint64, now uint64) (uint64, uint64, error) {
	if p == nil {
		return 0, 0, errNilPool
	}
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return 0, 0, err
	}
	if lp == 0 {
		return 0, 0, fmt.Errorf("pool: share amount must be positive: %w", coreerrors.ErrInvalidAmount)
	}

	p.mu.Lock()
	held := p.shares[provider]
	if held < lp {
		p.mu.Unlock()
		return 0, 0, fmt.Errorf("pool: %s holds %d shares, redeeming %d: %w", provider, held, lp, coreerrors.ErrInsufficientBalance)
	}
	amountA, amountB := redeemAmounts(lp, p.reserveA, p.reserveB, p.supply)
	if amountA == 0 && amountB == 0 {
		p.mu.Unlock()
		return 0, 0, fmt.Errorf("pool: redemption rounds to zero: %w", coreerrors.ErrInvalidAmount)
	}
	postings := append(
		bank.Transfer(p.custody, provider, p.assetA, amountA),
		bank.Transfer(p.custody, provider, p.assetB, amountB)...,
	)
	err := p.commitLocked(postings, func() {
		p.reserveA -= amountA
		p.reserveB -= amountB
		p.supply -= lp
		if held == lp {
			delete(p.shares, provider)
		} else {
			p.shares[provider] = held - lp
		}
	})
	if err != nil {
		p.mu.Unlock()
		return 0, 0, err
	}
	emitter := p.emitter
	p.mu.Unlock()

	emitter.Emit(events.LiquidityRemoved{
		Provider:  provider,
		AmountA:   amountA,
		AmountB:   amountB,
		Burned:    lp,
		Timestamp: now,
	})
	return amountA, amountB, nil
}

// SetFee updates the swap fee. Only the admin may call it.
func (p *Pool) SetFee(caller crypto.Address, feeBps uint64, now uint64) error {
	if p == nil {
		return errNilPool
	}
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return err
	}
	if p.admin.IsZero() || caller != p.admin {
		return fmt.Errorf("pool: %s is not the admin: %w", caller, coreerrors.ErrUnauthorized)
	}
	if feeBps > MaxFeeBps {
		return fmt.Errorf("pool: fee %d bps above %d: %w", feeBps, MaxFeeBps, coreerrors.ErrInvalidAmount)
	}
	p.mu.Lock()
	old := p.feeBps
	if err := p.commitLocked(nil, func() { p.feeBps = feeBps }); err != nil {
		p.mu.Unlock()
		return err
	}
	emitter := p.emitter
	p.mu.Unlock()

	emitter.Emit(events.PoolFeeUpdated{Admin: caller, OldBps: old, NewBps: feeBps, Timestamp: now})
	return nil
}

// Snapshot captures reserves and positions ordered by provider.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Restore replaces the pool state with a snapshot after checking that the
// positions account for the whole share supply.
func (p *Pool) Restore(s Snapshot) error {
	if p == nil {
		return errNilPool
	}
	var total uint64
	for _, pos := range s.Positions {
		next, err := addChecked(total, pos.Shares)
		if err != nil {
			return err
		}
		total = next
	}
	if total != s.Supply {
		return fmt.Errorf("pool: positions sum to %d, supply is %d", total, s.Supply)
	}
	if s.Supply > 0 && (s.ReserveA == 0 || s.ReserveB == 0) {
		return fmt.Errorf("pool: snapshot has shares against an empty reserve: %w", coreerrors.ErrInsufficientReserve)
	}
	if s.FeeBps > MaxFeeBps {
		return fmt.Errorf("pool: snapshot fee %d bps above %d", s.FeeBps, MaxFeeBps)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.restoreLocked(s)
	return nil
}
