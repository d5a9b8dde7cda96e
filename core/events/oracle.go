package events

import (
	"assetpool/core/types"
	"assetpool/crypto"
)

const (
	// TypePriceUpdated is emitted when the trusted feeder publishes a price.
	TypePriceUpdated = "oracle.price_updated"
)

// PriceUpdated records a new oracle quote.
type PriceUpdated struct {
	Asset     string
	Feeder    crypto.Address
	Price     uint64
	Timestamp uint64
}

func (PriceUpdated) EventType() string { return TypePriceUpdated }

func (e PriceUpdated) Event() *types.Event {
	return &types.Event{
		Type: TypePriceUpdated,
		Attributes: map[string]string{
			"asset":     normalizeAsset(e.Asset),
			"feeder":    e.Feeder.String(),
			"price":     formatAmount(e.Price),
			"timestamp": formatAmount(e.Timestamp),
		},
	}
}

func (e PriceUpdated) Record() Record {
	return Record{
		Kind:      TypePriceUpdated,
		Actor:     e.Feeder.String(),
		Amounts:   map[string]uint64{"price": e.Price},
		Timestamp: e.Timestamp,
	}
}
