package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"assetpool/crypto"
	"assetpool/native/loans"
)

type loanResponse struct {
	ID         string `json:"id"`
	Borrower   string `json:"borrower"`
	Principal  Amount `json:"principal"`
	Collateral Amount `json:"collateral"`
	RateBps    uint64 `json:"rate_bps"`
	CreatedAt  uint64 `json:"created_at"`
	DueTime    uint64 `json:"due_time"`
	Status     string `json:"status"`
	PastDue    bool   `json:"past_due"`
}

func (s *Server) loanFrom(l loans.Loan, now uint64) loanResponse {
	return loanResponse{
		ID:         l.ID,
		Borrower:   l.Borrower.String(),
		Principal:  Amount(l.Principal),
		Collateral: Amount(l.Collateral),
		RateBps:    l.RateBps,
		CreatedAt:  l.CreatedAt,
		DueTime:    l.DueTime,
		Status:     l.Status.String(),
		PastDue:    l.PastDue(now),
	}
}

func (s *Server) loanList(list []loans.Loan) []loanResponse {
	now := s.nowMs()
	out := make([]loanResponse, 0, len(list))
	for _, l := range list {
		out = append(out, s.loanFrom(l, now))
	}
	return out
}

func (s *Server) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		Collateral Amount  `json:"collateral"`
		Principal  Amount  `json:"principal"`
		DurationMs *uint64 `json:"duration_ms"`
		RateBps    *uint64 `json:"rate_bps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	duration := s.cfg.DefaultLoanDurationMs
	if req.DurationMs != nil {
		duration = *req.DurationMs
	}
	rate := s.cfg.DefaultLoanRateBps
	if req.RateBps != nil {
		rate = *req.RateBps
	}
	now := s.nowMs()
	loan, err := s.book.CreateLoan(principal.Subject, uint64(req.Collateral), uint64(req.Principal), duration, rate, now)
	if err != nil {
		s.writeEngineError(w, "loans.create", err)
		return
	}
	s.refreshLoanGauges()
	writeJSON(w, http.StatusCreated, s.loanFrom(loan, now))
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := s.book.Get(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		s.writeEngineError(w, "loans.get", err)
		return
	}
	writeJSON(w, http.StatusOK, s.loanFrom(loan, s.nowMs()))
}

func (s *Server) handleListLoans(w http.ResponseWriter, r *http.Request) {
	var borrower crypto.Address
	if raw := strings.TrimSpace(r.URL.Query().Get("borrower")); raw != "" {
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid borrower")
			return
		}
		borrower = addr
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": s.loanList(s.book.List(borrower))})
}

func (s *Server) handlePastDue(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"loans": s.loanList(s.book.PastDue(s.nowMs()))})
}

func (s *Server) handleRepayLoan(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount Amount `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	released, err := s.book.RepayLoan(principal.Subject, id, uint64(req.Amount), s.nowMs())
	if err != nil {
		s.writeEngineError(w, "loans.repay", err)
		return
	}
	s.refreshLoanGauges()
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "repaid": req.Amount, "collateral_released": Amount(released)})
}

func (s *Server) handleSeizeLoan(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}
	now := s.nowMs()
	loan, err := s.book.SeizeDefaulted(principal.Subject, strings.TrimSpace(chi.URLParam(r, "id")), now)
	if err != nil {
		s.writeEngineError(w, "loans.seize", err)
		return
	}
	s.refreshLoanGauges()
	writeJSON(w, http.StatusOK, s.loanFrom(loan, now))
}
