package oracle

import (
	"errors"
	"fmt"
	"sync"

	coreerrors "assetpool/core/errors"
	"assetpool/core/events"
	"assetpool/core/types"
	"assetpool/crypto"
	nativecommon "assetpool/native/common"
)

// PriceScale is the fixed-point denominator of published prices: a price of
// PriceScale means one unit of the quote asset per unit of the base asset.
const PriceScale = 1_000_000

const moduleName = nativecommon.ModuleOracle

var errNilOracle = errors.New("oracle: not initialised")

// Snapshot is the persisted view of an oracle.
type Snapshot struct {
	Asset      types.Asset
	Price      uint64
	LastUpdate uint64
}

// Oracle holds the single price quote published by a trusted feeder.
type Oracle struct {
	mu         sync.RWMutex
	asset      types.Asset
	feeder     crypto.Address
	price      uint64
	lastUpdate uint64

	pauses  nativecommon.PauseView
	emitter events.Emitter
	journal Journal
}

// Journal persists the oracle snapshot after each accepted update.
type Journal interface {
	CommitOracle(s Snapshot) error
}

// New constructs an oracle for asset that only accepts updates from feeder.
func New(asset types.Asset, feeder crypto.Address) *Oracle {
	return &Oracle{asset: asset, feeder: feeder, emitter: events.NoopEmitter{}}
}

func (o *Oracle) SetPauses(p nativecommon.PauseView) {
	if o == nil {
		return
	}
	o.pauses = p
}

func (o *Oracle) SetEmitter(emitter events.Emitter) {
	if o == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	o.emitter = emitter
}

// SetJournal makes every later update durable before it is acknowledged.
func (o *Oracle) SetJournal(j Journal) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.journal = j
}

// Asset returns the asset the oracle prices.
func (o *Oracle) Asset() types.Asset { return o.asset }

// Feeder returns the identity allowed to publish prices.
func (o *Oracle) Feeder() crypto.Address { return o.feeder }

// UpdatePrice publishes a new price on behalf of the caller.
func (o *Oracle) UpdatePrice(caller crypto.Address, price uint64, now uint64) error {
	if o == nil {
		return errNilOracle
	}
	if err := nativecommon.Guard(o.pauses, moduleName); err != nil {
		return err
	}
	if caller.IsZero() || caller != o.feeder {
		return fmt.Errorf("oracle: %s is not the feeder: %w", caller, coreerrors.ErrUnauthorized)
	}
	if price == 0 {
		return fmt.Errorf("oracle: price must be positive: %w", coreerrors.ErrInvalidAmount)
	}
	o.mu.Lock()
	if o.journal != nil {
		next := Snapshot{Asset: o.asset, Price: price, LastUpdate: now}
		if err := o.journal.CommitOracle(next); err != nil {
			o.mu.Unlock()
			return err
		}
	}
	o.price = price
	o.lastUpdate = now
	emitter := o.emitter
	o.mu.Unlock()

	emitter.Emit(events.PriceUpdated{
		Asset:     o.asset.String(),
		Feeder:    caller,
		Price:     price,
		Timestamp: now,
	})
	return nil
}

// ReadPrice returns the last published price and its timestamp. Both are zero
// before the first update.
func (o *Oracle) ReadPrice() (price uint64, lastUpdate uint64) {
	if o == nil {
		return 0, 0
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.price, o.lastUpdate
}

// FreshPrice returns the price when it was published no more than window
// milliseconds before now.
func (o *Oracle) FreshPrice(now uint64, window uint64) (uint64, error) {
	price, last := o.ReadPrice()
	if price == 0 {
		return 0, fmt.Errorf("oracle: no price published: %w", coreerrors.ErrStalePrice)
	}
	if now > last && now-last > window {
		return 0, fmt.Errorf("oracle: price age %dms exceeds %dms: %w", now-last, window, coreerrors.ErrStalePrice)
	}
	return price, nil
}

// Snapshot captures the oracle state for persistence.
func (o *Oracle) Snapshot() Snapshot {
	price, last := o.ReadPrice()
	return Snapshot{Asset: o.asset, Price: price, LastUpdate: last}
}

// Restore loads a previously captured snapshot.
func (o *Oracle) Restore(s Snapshot) error {
	if o == nil {
		return errNilOracle
	}
	if s.Asset != "" && s.Asset != o.asset {
		return fmt.Errorf("oracle: snapshot prices %s, oracle prices %s", s.Asset, o.asset)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.price = s.Price
	o.lastUpdate = s.LastUpdate
	return nil
}
