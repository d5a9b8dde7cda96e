package events

import (
	"assetpool/core/types"
	"assetpool/crypto"
)

const (
	// TypeLiquidityAdded is emitted when a provider deposits both assets.
	TypeLiquidityAdded = "pool.liquidity_added"
	// TypeLiquidityRemoved is emitted when a provider redeems shares.
	TypeLiquidityRemoved = "pool.liquidity_removed"
	// TypeSwap is emitted for every executed swap.
	TypeSwap = "pool.swap"
	// TypePoolFeeUpdated is emitted when the admin changes the swap fee.
	TypePoolFeeUpdated = "pool.fee_updated"
)

type LiquidityAdded struct {
	Provider  crypto.Address
	AmountA   uint64
	AmountB   uint64
	Minted    uint64
	Timestamp uint64
}

func (LiquidityAdded) EventType() string { return TypeLiquidityAdded }

func (e LiquidityAdded) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidityAdded,
		Attributes: map[string]string{
			"provider":  e.Provider.String(),
			"amountA":   formatAmount(e.AmountA),
			"amountB":   formatAmount(e.AmountB),
			"minted":    formatAmount(e.Minted),
			"timestamp": formatAmount(e.Timestamp),
		},
	}
}

func (e LiquidityAdded) Record() Record {
	return Record{
		Kind:  TypeLiquidityAdded,
		Actor: e.Provider.String(),
		Amounts: map[string]uint64{
			"amount_a": e.AmountA,
			"amount_b": e.AmountB,
			"minted":   e.Minted,
		},
		Timestamp: e.Timestamp,
	}
}

type LiquidityRemoved struct {
	Provider  crypto.Address
	AmountA   uint64
	AmountB   uint64
	Burned    uint64
	Timestamp uint64
}

func (LiquidityRemoved) EventType() string { return TypeLiquidityRemoved }

func (e LiquidityRemoved) Event() *types.Event {
	return &types.Event{
		Type: TypeLiquidityRemoved,
		Attributes: map[string]string{
			"provider":  e.Provider.String(),
			"amountA":   formatAmount(e.AmountA),
			"amountB":   formatAmount(e.AmountB),
			"burned":    formatAmount(e.Burned),
			"timestamp": formatAmount(e.Timestamp),
		},
	}
}

func (e LiquidityRemoved) Record() Record {
	return Record{
		Kind:  TypeLiquidityRemoved,
		Actor: e.Provider.String(),
		Amounts: map[string]uint64{
			"amount_a": e.AmountA,
			"amount_b": e.AmountB,
			"burned":   e.Burned,
		},
		Timestamp: e.Timestamp,
	}
}

// Swap captures the realised trade together with the oracle-implied output it
// was validated against.
type Swap struct {
	Trader      crypto.Address
	Direction   types.Direction
	AssetIn     types.Asset
	AssetOut    types.Asset
	AmountIn    uint64
	AmountOut   uint64
	ExpectedOut uint64
	Timestamp   uint64
}

func (Swap) EventType() string { return TypeSwap }

func (e Swap) Event() *types.Event {
	return &types.Event{
		Type: TypeSwap,
		Attributes: map[string]string{
			"trader":      e.Trader.String(),
			"direction":   e.Direction.String(),
			"assetIn":     normalizeAsset(e.AssetIn.String()),
			"assetOut":    normalizeAsset(e.AssetOut.String()),
			"amountIn":    formatAmount(e.AmountIn),
			"amountOut":   formatAmount(e.AmountOut),
			"expectedOut": formatAmount(e.ExpectedOut),
			"timestamp":   formatAmount(e.Timestamp),
		},
	}
}

func (e Swap) Record() Record {
	return Record{
		Kind:  TypeSwap,
		Actor: e.Trader.String(),
		Amounts: map[string]uint64{
			"amount_in":    e.AmountIn,
			"amount_out":   e.AmountOut,
			"expected_out": e.ExpectedOut,
		},
		Timestamp: e.Timestamp,
	}
}

type PoolFeeUpdated struct {
	Admin     crypto.Address
	OldBps    uint64
	NewBps    uint64
	Timestamp uint64
}

func (PoolFeeUpdated) EventType() string { return TypePoolFeeUpdated }

func (e PoolFeeUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePoolFeeUpdated,
		Attributes: map[string]string{
			"admin":     e.Admin.String(),
			"oldBps":    formatAmount(e.OldBps),
			"newBps":    formatAmount(e.NewBps),
			"timestamp": formatAmount(e.Timestamp),
		},
	}
}

func (e PoolFeeUpdated) Record() Record {
	return Record{
		Kind:      TypePoolFeeUpdated,
		Actor:     e.Admin.String(),
		Amounts:   map[string]uint64{"old_bps": e.OldBps, "new_bps": e.NewBps},
		Timestamp: e.Timestamp,
	}
}
