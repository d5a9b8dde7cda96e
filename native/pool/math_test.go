package pool

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	coreerrors "assetpool/core/errors"
	"assetpool/core/types"
)

type bigProduct struct {
	*uint256.Int
}

func (b *bigProduct) of(x, y uint64) *bigProduct {
	b.Int = new(uint256.Int).Mul(uint256.NewInt(x), uint256.NewInt(y))
	return b
}

func TestExpectedOutput(t *testing.T) {
	cases := []struct {
		name   string
		amount uint64
		price  uint64
		dir    types.Direction
		want   uint64
	}{
		{"a to b at par", 100, 1_000_000, types.AToB, 100},
		{"a to b at 2.5", 40, 2_500_000, types.AToB, 100},
		{"b to a at 2.5", 100, 2_500_000, types.BToA, 40},
		{"b to a truncates", 1, 3_000_000, types.BToA, 0},
	}
	for _, tc := range cases {
		got, err := ExpectedOutput(tc.amount, tc.price, tc.dir)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
	if _, err := ExpectedOutput(^uint64(0), ^uint64(0), types.AToB); !errors.Is(err, coreerrors.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestMinAcceptable(t *testing.T) {
	if got := MinAcceptable(100, 1000); got != 90 {
		t.Fatalf("expected 90, got %d", got)
	}
	if got := MinAcceptable(100, 0); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	if got := MinAcceptable(100, BasisPoints); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMintAmountWide(t *testing.T) {
	max := ^uint64(0)
	minted, err := mintAmount(max, max, 0, 0, 0)
	if err != nil || minted != max {
		t.Fatalf("seed mint of max amounts: %d %v", minted, err)
	}
	if _, err := mintAmount(max, max, 1, 1, max); !errors.Is(err, coreerrors.ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}
