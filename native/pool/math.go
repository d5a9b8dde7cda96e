package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	coreerrors "assetpool/core/errors"
	"assetpool/core/types"
)

const (
	// BasisPoints is the denominator of fee and slippage settings.
	BasisPoints = 10_000
	// MaxFeeBps caps the swap fee at 10%.
	MaxFeeBps = 1_000
	// PriceScale mirrors the oracle fixed-point denominator.
	PriceScale = 1_000_000
	// PriceDecimals is log10(PriceScale).
	PriceDecimals = 6
)

func u256(v uint64) *uint256.Int { return uint256.NewInt(v) }

func toUint64(v *uint256.Int) (uint64, error) {
	if !v.IsUint64() {
		return 0, fmt.Errorf("pool: %s does not fit 64 bits: %w", v.Dec(), coreerrors.ErrOverflow)
	}
	return v.Uint64(), nil
}

// QuoteSwap returns the constant-product output for amountIn against the
// supplied reserves after deducting feeBps. The result truncates toward zero.
func QuoteSwap(amountIn, reserveIn, reserveOut, feeBps uint64) uint64 {
	if amountIn == 0 || reserveIn == 0 || reserveOut == 0 || feeBps >= BasisPoints {
		return 0
	}
	net := new(uint256.Int).Mul(u256(amountIn), u256(BasisPoints-feeBps))
	numerator := new(uint256.Int).Mul(net, u256(reserveOut))
	denominator := new(uint256.Int).Mul(u256(reserveIn), u256(BasisPoints))
	denominator.Add(denominator, net)
	// numerator/denominator < reserveOut, so the quotient always fits.
	return new(uint256.Int).Div(numerator, denominator).Uint64()
}

// ExpectedOutput converts amountIn at the oracle price. Prices quote asset B
// per unit of asset A scaled by PriceScale.
func ExpectedOutput(amountIn, price uint64, dir types.Direction) (uint64, error) {
	if price == 0 {
		return 0, fmt.Errorf("pool: zero oracle price: %w", coreerrors.ErrStalePrice)
	}
	var out *uint256.Int
	switch dir {
	case types.AToB:
		out = new(uint256.Int).Mul(u256(amountIn), u256(price))
		out.Div(out, u256(PriceScale))
	case types.BToA:
		out = new(uint256.Int).Mul(u256(amountIn), u256(PriceScale))
		out.Div(out, u256(price))
	default:
		return 0, fmt.Errorf("pool: unknown direction %s: %w", dir, coreerrors.ErrInvalidAmount)
	}
	return toUint64(out)
}

// MinAcceptable applies the slippage tolerance to the expected output.
func MinAcceptable(expected, maxSlippageBps uint64) uint64 {
	if maxSlippageBps >= BasisPoints {
		return 0
	}
	v := new(uint256.Int).Mul(u256(expected), u256(BasisPoints-maxSlippageBps))
	return v.Div(v, u256(BasisPoints)).Uint64()
}

// mintAmount computes the shares minted for a deposit. The first deposit
// mints the mean of both amounts; later deposits mint in proportion to the
// smaller relative contribution.
func mintAmount(amountA, amountB, reserveA, reserveB, supply uint64) (uint64, error) {
	if supply == 0 {
		sum := new(uint256.Int).Add(u256(amountA), u256(amountB))
		return sum.Div(sum, u256(2)).Uint64(), nil
	}
	if reserveA == 0 || reserveB == 0 {
		return 0, fmt.Errorf("pool: shares outstanding against an empty reserve: %w", coreerrors.ErrInsufficientReserve)
	}
	byA := new(uint256.Int).Mul(u256(amountA), u256(supply))
	byA.Div(byA, u256(reserveA))
	byB := new(uint256.Int).Mul(u256(amountB), u256(supply))
	byB.Div(byB, u256(reserveB))
	minted := byA
	if byB.Lt(byA) {
		minted = byB
	}
	return toUint64(minted)
}

// redeemAmounts returns the pro-rata reserve share of lp, rounded down.
func redeemAmounts(lp, reserveA, reserveB, supply uint64) (uint64, uint64) {
	if supply == 0 {
		return 0, 0
	}
	a := new(uint256.Int).Mul(u256(lp), u256(reserveA))
	a.Div(a, u256(supply))
	b := new(uint256.Int).Mul(u256(lp), u256(reserveB))
	b.Div(b, u256(supply))
	// lp <= supply keeps both results within the reserves.
	return a.Uint64(), b.Uint64()
}

func addChecked(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, fmt.Errorf("pool: %d + %d: %w", a, b, coreerrors.ErrOverflow)
	}
	return sum, nil
}
