package pool

import (
	"fmt"

	coreerrors "assetpool/core/errors"
	"assetpool/core/events"
	"assetpool/core/types"
	"assetpool/crypto"
	nativecommon "assetpool/native/common"
	"assetpool/state/bank"
)

// StaleWindowMs is the maximum oracle age accepted by Swap.
const StaleWindowMs = 3_600_000

// PriceSource is the oracle view consumed by swaps.
type PriceSource interface {
	FreshPrice(now uint64, window uint64) (uint64, error)
}

// SwapRequest carries the caller supplied swap parameters.
type SwapRequest struct {
	Trader         crypto.Address
	AmountIn       uint64
	Direction      types.Direction
	MinOut         uint64
	MaxSlippageBps uint64
	Now            uint64
}

// Quote is the evaluated outcome of a swap before any balance moves.
type Quote struct {
	AssetIn       types.Asset
	AssetOut      types.Asset
	AmountIn      uint64
	AmountOut     uint64
	ExpectedOut   uint64
	MinAcceptable uint64
	Price         uint64
}

func (p *Pool) sides(dir types.Direction) (assetIn, assetOut types.Asset, reserveIn, reserveOut uint64, err error) {
	switch dir {
	case types.AToB:
		return p.assetA, p.assetB, p.reserveA, p.reserveB, nil
	case types.BToA:
		return p.assetB, p.assetA, p.reserveB, p.reserveA, nil
	default:
		return "", "", 0, 0, fmt.Errorf("pool: unknown direction %s: %w", dir, coreerrors.ErrInvalidAmount)
	}
}

// quoteLocked evaluates the request against the current reserves and oracle.
// Callers must hold p.mu.
func (p *Pool) quoteLocked(req SwapRequest, oracle PriceSource) (Quote, error) {
	if req.AmountIn == 0 {
		return Quote{}, fmt.Errorf("pool: swap amount must be positive: %w", coreerrors.ErrInvalidAmount)
	}
	if req.MaxSlippageBps > BasisPoints {
		return Quote{}, fmt.Errorf("pool: slippage %d bps above %d: %w", req.MaxSlippageBps, BasisPoints, coreerrors.ErrInvalidAmount)
	}
	if oracle == nil {
		return Quote{}, fmt.Errorf("pool: no price source: %w", coreerrors.ErrStalePrice)
	}
	assetIn, assetOut, reserveIn, reserveOut, err := p.sides(req.Direction)
	if err != nil {
		return Quote{}, err
	}
	if reserveIn == 0 || reserveOut == 0 {
		return Quote{}, fmt.Errorf("pool: reserves empty: %w", coreerrors.ErrInsufficientReserve)
	}
	price, err := oracle.FreshPrice(req.Now, StaleWindowMs)
	if err != nil {
		return Quote{}, err
	}
	expected, err := ExpectedOutput(req.AmountIn, price, req.Direction)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		AssetIn:       assetIn,
		AssetOut:      assetOut,
		AmountIn:      req.AmountIn,
		AmountOut:     QuoteSwap(req.AmountIn, reserveIn, reserveOut, p.feeBps),
		ExpectedOut:   expected,
		MinAcceptable: MinAcceptable(expected, req.MaxSlippageBps),
		Price:         price,
	}, nil
}

// Preview evaluates a swap without moving balances. The returned quote is
// informational; slippage limits are not enforced.
func (p *Pool) Preview(req SwapRequest, oracle PriceSource) (Quote, error) {
	if p == nil {
		return Quote{}, errNilPool
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quoteLocked(req, oracle)
}

// Swap trades AmountIn of the input asset for the pool output after checking
// the output against the oracle-implied amount and the caller minimum.
func (p *Pool) Swap(req SwapRequest, oracle PriceSource) (uint64, error) {
	if p == nil {
		return 0, errNilPool
	}
	if err := nativecommon.Guard(p.pauses, moduleName); err != nil {
		return 0, err
	}

	p.mu.Lock()
	quote, err := p.quoteLocked(req, oracle)
	if err != nil {
		p.mu.Unlock()
		return 0, err
	}
	if quote.AmountOut == 0 {
		p.mu.Unlock()
		return 0, fmt.Errorf("pool: swap of %d yields nothing: %w", req.AmountIn, coreerrors.ErrInvalidAmount)
	}
	if quote.AmountOut < quote.MinAcceptable || quote.AmountOut < req.MinOut {
		p.mu.Unlock()
		return 0, fmt.Errorf("pool: output %d below minimum (oracle %d, caller %d): %w",
			quote.AmountOut, quote.MinAcceptable, req.MinOut, coreerrors.ErrSlippageExceeded)
	}
	_, _, reserveIn, reserveOut, _ := p.sides(req.Direction)
	nextIn, err := addChecked(reserveIn, req.AmountIn)
	if err != nil {
		p.mu.Unlock()
		return 0, err
	}
	nextOut := reserveOut - quote.AmountOut
	postings := append(
		bank.Transfer(req.Trader, p.custody, quote.AssetIn, req.AmountIn),
		bank.Transfer(p.custody, req.Trader, quote.AssetOut, quote.AmountOut)...,
	)
	err = p.commitLocked(postings, func() {
		if req.Direction == types.AToB {
			p.reserveA, p.reserveB = nextIn, nextOut
		} else {
			p.reserveB, p.reserveA = nextIn, nextOut
		}
	})
	if err != nil {
		p.mu.Unlock()
		return 0, err
	}
	emitter := p.emitter
	p.mu.Unlock()

	emitter.Emit(events.Swap{
		Trader:      req.Trader,
		Direction:   req.Direction,
		AssetIn:     quote.AssetIn,
		AssetOut:    quote.AssetOut,
		AmountIn:    req.AmountIn,
		AmountOut:   quote.AmountOut,
		ExpectedOut: quote.ExpectedOut,
		Timestamp:   req.Now,
	})
	return quote.AmountOut, nil
}
