package types

import (
	"fmt"
	"strings"
)

// Asset identifies a fungible balance tracked by the ledger. Symbols are
// stored upper-cased so lookups are insensitive to configuration casing.
type Asset string

// NewAsset normalises the supplied symbol into an Asset.
func NewAsset(symbol string) Asset {
	return Asset(strings.ToUpper(strings.TrimSpace(symbol)))
}

// String implements fmt.Stringer.
func (a Asset) String() string { return string(a) }

// Valid reports whether the asset carries a non-empty symbol.
func (a Asset) Valid() bool { return strings.TrimSpace(string(a)) != "" }

// Direction selects which reserve receives the input of a swap.
type Direction uint8

const (
	// AToB sells asset A into the pool for asset B.
	AToB Direction = iota
	// BToA sells asset B into the pool for asset A.
	BToA
)

// String renders the direction in the form used by the HTTP API.
func (d Direction) String() string {
	switch d {
	case AToB:
		return "a_to_b"
	case BToA:
		return "b_to_a"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

// ParseDirection converts the API representation into a Direction.
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "a_to_b", "atob", "a":
		return AToB, nil
	case "b_to_a", "btoa", "b":
		return BToA, nil
	default:
		return 0, fmt.Errorf("unknown swap direction %q", raw)
	}
}
