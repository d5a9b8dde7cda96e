package server

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"assetpool/core/types"
	"assetpool/crypto"
	nativecommon "assetpool/native/common"
	"assetpool/services/poold/storage"
	"assetpool/state/bank"
)

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAccount(w, r)
	if !ok {
		return
	}
	balances, err := s.ledger.Balances(addr)
	if err != nil {
		s.writeEngineError(w, "ledger.balances", err)
		return
	}
	assets := make([]string, 0, len(balances))
	for asset := range balances {
		assets = append(assets, asset.String())
	}
	sort.Strings(assets)
	out := make(map[string]Amount, len(balances))
	for _, asset := range assets {
		out[asset] = Amount(balances[types.Asset(asset)])
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": addr.String(), "balances": out})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(strings.TrimSpace(q.Get("limit")))
	stored, err := s.store.ListEvents(r.Context(), storage.EventFilter{Kind: q.Get("kind"), Actor: q.Get("actor"), Limit: limit})
	if err != nil {
		s.writeEngineError(w, "events.list", err)
		return
	}
	type eventResponse struct {
		ID         string            `json:"id"`
		Kind       string            `json:"kind"`
		Actor      string            `json:"actor"`
		Amounts    map[string]Amount `json:"amounts"`
		Timestamp  uint64            `json:"timestamp"`
		RecordedAt string            `json:"recorded_at"`
	}
	out := make([]eventResponse, 0, len(stored))
	for _, ev := range stored {
		amounts := make(map[string]Amount, len(ev.Record.Amounts))
		for k, v := range ev.Record.Amounts {
			amounts[k] = Amount(v)
		}
		out = append(out, eventResponse{
			ID:         ev.ID,
			Kind:       ev.Record.Kind,
			Actor:      ev.Record.Actor,
			Amounts:    amounts,
			Timestamp:  ev.Record.Timestamp,
			RecordedAt: ev.RecordedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (s *Server) handleListPauses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"paused": s.pauses.Paused()})
}

func (s *Server) handleSetPause(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok || !s.requirePoolAdmin(w, principal) {
		return
	}
	var req struct {
		Module string `json:"module"`
		Paused bool   `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	module := strings.ToLower(strings.TrimSpace(req.Module))
	switch module {
	case nativecommon.ModuleOracle, nativecommon.ModulePool, nativecommon.ModuleLoans:
	default:
		writeError(w, http.StatusBadRequest, "unknown module")
		return
	}
	s.pauses.Set(module, req.Paused)
	s.logger.Info("module pause toggled", "module", module, "paused", req.Paused, "subject", principal.Subject.String())
	writeJSON(w, http.StatusOK, map[string]any{"paused": s.pauses.Paused()})
}

// handleCredit deposits externally bridged funds into a ledger account.
func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok || !s.requirePoolAdmin(w, principal) {
		return
	}
	var req struct {
		Account string `json:"account"`
		Asset   string `json:"asset"`
		Amount  Amount `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	addr, err := crypto.DecodeAddress(strings.TrimSpace(req.Account))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid account")
		return
	}
	asset := types.NewAsset(req.Asset)
	if !asset.Valid() || req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "asset and positive amount required")
		return
	}
	if asset == s.book.Issuer().Asset() {
		writeError(w, http.StatusBadRequest, "pegged units are only issued against collateral")
		return
	}
	if err := bank.Apply(s.ledger, bank.CreditOf(addr, asset, uint64(req.Amount))); err != nil {
		s.writeEngineError(w, "admin.credit", err)
		return
	}
	balance, _ := s.ledger.BalanceOf(addr, asset)
	s.logger.Info("ledger credited", "subject", principal.Subject.String(), "account", addr.String(), "asset", asset.String(), "amount", uint64(req.Amount))
	writeJSON(w, http.StatusOK, map[string]any{"account": addr.String(), "asset": asset.String(), "balance": Amount(balance)})
}
