package server

import (
	"encoding/json"
	"math/big"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"assetpool/native/pool"
	"assetpool/observability"
)

func (s *Server) handleOracleState(w http.ResponseWriter, r *http.Request) {
	snap := s.oracle.Snapshot()
	now := s.nowMs()
	_, staleErr := s.oracle.FreshPrice(now, pool.StaleWindowMs)
	if snap.LastUpdate > 0 && now >= snap.LastUpdate {
		observability.Oracle().RecordFreshness(snap.Asset.String(), time.Duration(now-snap.LastUpdate)*time.Millisecond)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"asset":       snap.Asset.String(),
		"feeder":      s.oracle.Feeder().String(),
		"price":       Amount(snap.Price),
		"rate":        priceRate(snap.Price),
		"last_update": snap.LastUpdate,
		"fresh":       staleErr == nil,
	})
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		Price Amount `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	now := s.nowMs()
	if err := s.oracle.UpdatePrice(principal.Subject, uint64(req.Price), now); err != nil {
		s.writeEngineError(w, "oracle.update", err)
		return
	}
	observability.Oracle().RecordPrice(s.oracle.Asset().String(), uint64(req.Price))
	writeJSON(w, http.StatusOK, map[string]any{"price": req.Price, "last_update": now})
}

// priceRate renders a fixed point oracle price as a decimal quote per base unit.
func priceRate(price uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(price), -pool.PriceDecimals).String()
}
