package config

import (
	"fmt"
	"strings"

	"assetpool/core/types"
	"assetpool/crypto"
)

const (
	maxFeeBps             = 1_000
	basisPoints           = 10_000
	minCollateralRatioPct = 150
)

// Validate checks the parameters for internal consistency.
func (p *Params) Validate() error {
	if p == nil {
		return fmt.Errorf("params: nil")
	}
	a, b, peg := types.NewAsset(p.AssetA), types.NewAsset(p.AssetB), types.NewAsset(p.PeggedAsset)
	if a == b || a == peg || b == peg {
		return fmt.Errorf("assets: AssetA, AssetB and PeggedAsset must be distinct")
	}
	if p.FeeBps > maxFeeBps {
		return fmt.Errorf("pool: FeeBps %d above %d", p.FeeBps, maxFeeBps)
	}
	if p.DefaultMaxSlippageBps > basisPoints {
		return fmt.Errorf("pool: DefaultMaxSlippageBps %d above %d", p.DefaultMaxSlippageBps, basisPoints)
	}
	if p.CollateralRatioPct < minCollateralRatioPct {
		return fmt.Errorf("loans: CollateralRatioPct %d below %d", p.CollateralRatioPct, minCollateralRatioPct)
	}
	if _, err := p.Resolve(); err != nil {
		return err
	}
	return nil
}

// Resolve decodes the asset symbols and bech32 addresses.
func (p *Params) Resolve() (Resolved, error) {
	out := Resolved{
		AssetA:      types.NewAsset(p.AssetA),
		AssetB:      types.NewAsset(p.AssetB),
		PeggedAsset: types.NewAsset(p.PeggedAsset),
	}
	fields := []struct {
		name     string
		raw      string
		dst      *crypto.Address
		required bool
	}{
		{"Admin", p.Admin, &out.Admin, true},
		{"Feeder", p.Feeder, &out.Feeder, true},
		{"Treasury", p.Treasury, &out.Treasury, true},
	}
	for _, field := range fields {
		raw := strings.TrimSpace(field.raw)
		if raw == "" {
			if field.required {
				return Resolved{}, fmt.Errorf("accounts: %s is required", field.name)
			}
			continue
		}
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return Resolved{}, fmt.Errorf("accounts: %s: %w", field.name, err)
		}
		*field.dst = addr
	}
	return out, nil
}
