package server

import (
	"encoding/json"
	"errors"
	"net/http"

	coreerrors "assetpool/core/errors"
	nativecommon "assetpool/native/common"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}

// errorStatus maps an engine error kind onto an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "module_paused"
	case errors.Is(err, coreerrors.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, coreerrors.ErrLoanNotFound):
		return http.StatusNotFound, "loan_not_found"
	case errors.Is(err, coreerrors.ErrStalePrice):
		return http.StatusConflict, "stale_price"
	case errors.Is(err, coreerrors.ErrSlippageExceeded):
		return http.StatusConflict, "slippage_exceeded"
	case errors.Is(err, coreerrors.ErrInsufficientCollateral):
		return http.StatusConflict, "insufficient_collateral"
	case errors.Is(err, coreerrors.ErrLoanPastDue):
		return http.StatusConflict, "loan_past_due"
	case errors.Is(err, coreerrors.ErrLoanNotPastDue):
		return http.StatusConflict, "loan_not_past_due"
	case errors.Is(err, coreerrors.ErrSupplyCapExceeded):
		return http.StatusConflict, "supply_cap_exceeded"
	case errors.Is(err, coreerrors.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, coreerrors.ErrInsufficientReserve):
		return http.StatusUnprocessableEntity, "insufficient_reserve"
	case errors.Is(err, coreerrors.ErrInsufficientRepayment):
		return http.StatusBadRequest, "insufficient_repayment"
	case errors.Is(err, coreerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, coreerrors.ErrOverflow):
		return http.StatusBadRequest, "overflow"
	case errors.Is(err, nativecommon.ErrQuotaRequestsExceeded), errors.Is(err, nativecommon.ErrQuotaVolumeExceeded), errors.Is(err, nativecommon.ErrQuotaCounterOverflow):
		return http.StatusTooManyRequests, "quota_exceeded"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, route string, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "route", route, "error", err)
		writeJSON(w, status, errorBody{Error: "internal error", Code: code})
		return
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Code: code})
}
