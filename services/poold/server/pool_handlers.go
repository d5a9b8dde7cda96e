package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"assetpool/core/types"
	"assetpool/native/pool"
	"assetpool/observability"
)

type poolStateResponse struct {
	AssetA      string `json:"asset_a"`
	AssetB      string `json:"asset_b"`
	ReserveA    Amount `json:"reserve_a"`
	ReserveB    Amount `json:"reserve_b"`
	TotalShares Amount `json:"total_shares"`
	FeeBps      uint64 `json:"fee_bps"`
	Custody     string `json:"custody"`
	Admin       string `json:"admin"`
}

type quoteResponse struct {
	AssetIn       string `json:"asset_in"`
	AssetOut      string `json:"asset_out"`
	AmountIn      Amount `json:"amount_in"`
	AmountOut     Amount `json:"amount_out"`
	ExpectedOut   Amount `json:"expected_out"`
	MinAcceptable Amount `json:"min_acceptable"`
	Price         Amount `json:"price"`
}

func (s *Server) handlePoolState(w http.ResponseWriter, r *http.Request) {
	st := s.pool.State()
	writeJSON(w, http.StatusOK, poolStateResponse{
		AssetA:      st.AssetA.String(),
		AssetB:      st.AssetB.String(),
		ReserveA:    Amount(st.ReserveA),
		ReserveB:    Amount(st.ReserveB),
		TotalShares: Amount(st.Supply),
		FeeBps:      st.FeeBps,
		Custody:     st.Custody.String(),
		Admin:       st.Admin.String(),
	})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dir, err := types.ParseDirection(q.Get("direction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := strconv.ParseUint(strings.TrimSpace(q.Get("amount")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount must be a non-negative integer")
		return
	}
	slippage := s.cfg.DefaultSlippageBps
	if raw := strings.TrimSpace(q.Get("max_slippage_bps")); raw != "" {
		slippage, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "max_slippage_bps must be an integer")
			return
		}
	}
	quote, err := s.pool.Preview(pool.SwapRequest{AmountIn: amount, Direction: dir, MaxSlippageBps: slippage, Now: s.nowMs()}, s.oracle)
	if err != nil {
		s.writeEngineError(w, "pool.quote", err)
		return
	}
	writeJSON(w, http.StatusOK, quoteFrom(quote))
}

func quoteFrom(q pool.Quote) quoteResponse {
	return quoteResponse{
		AssetIn:       q.AssetIn.String(),
		AssetOut:      q.AssetOut.String(),
		AmountIn:      Amount(q.AmountIn),
		AmountOut:     Amount(q.AmountOut),
		ExpectedOut:   Amount(q.ExpectedOut),
		MinAcceptable: Amount(q.MinAcceptable),
		Price:         Amount(q.Price),
	}
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"provider": addr.String(), "shares": Amount(s.pool.Shares(addr))})
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		AmountA Amount `json:"amount_a"`
		AmountB Amount `json:"amount_b"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	minted, err := s.pool.AddLiquidity(principal.Subject, uint64(req.AmountA), uint64(req.AmountB), s.nowMs())
	if err != nil {
		s.writeEngineError(w, "pool.add_liquidity", err)
		return
	}
	s.refreshPoolGauges()
	writeJSON(w, http.StatusOK, map[string]any{"minted": Amount(minted), "shares": Amount(s.pool.Shares(principal.Subject))})
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		Shares Amount `json:"shares"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	outA, outB, err := s.pool.RemoveLiquidity(principal.Subject, uint64(req.Shares), s.nowMs())
	if err != nil {
		s.writeEngineError(w, "pool.remove_liquidity", err)
		return
	}
	s.refreshPoolGauges()
	writeJSON(w, http.StatusOK, map[string]any{"amount_a": Amount(outA), "amount_b": Amount(outB)})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		Direction      string  `json:"direction"`
		AmountIn       Amount  `json:"amount_in"`
		MinOut         Amount  `json:"min_out"`
		MaxSlippageBps *uint64 `json:"max_slippage_bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	dir, err := types.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	slippage := s.cfg.DefaultSlippageBps
	if req.MaxSlippageBps != nil {
		slippage = *req.MaxSlippageBps
	}
	now := s.nowMs()
	if err := s.quota.Consume(principal.Subject.String(), now, uint64(req.AmountIn)); err != nil {
		observability.ModuleMetrics().RecordThrottle("pool", "quota")
		s.writeEngineError(w, "pool.swap", err)
		return
	}
	swap := pool.SwapRequest{
		Trader:         principal.Subject,
		AmountIn:       uint64(req.AmountIn),
		Direction:      dir,
		MinOut:         uint64(req.MinOut),
		MaxSlippageBps: slippage,
		Now:            now,
	}
	st := s.pool.State()
	assetIn := st.AssetA
	if dir == types.BToA {
		assetIn = st.AssetB
	}
	out, err := s.pool.Swap(swap, s.oracle)
	observability.Pool().RecordSwap(dir.String(), assetIn.String(), swap.AmountIn, err)
	if err != nil {
		s.quota.Refund(principal.Subject.String(), now, swap.AmountIn)
		s.writeEngineError(w, "pool.swap", err)
		return
	}
	s.refreshPoolGauges()
	writeJSON(w, http.StatusOK, map[string]any{"direction": dir.String(), "amount_in": req.AmountIn, "amount_out": Amount(out)})
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		FeeBps uint64 `json:"fee_bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := s.pool.SetFee(principal.Subject, req.FeeBps, s.nowMs()); err != nil {
		s.writeEngineError(w, "pool.set_fee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"fee_bps": req.FeeBps})
}
