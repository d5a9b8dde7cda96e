package errors

import stderrors "errors"

// Error kinds shared by the oracle, pool and loan book. Engine packages wrap
// these with context so callers can match on the kind with errors.Is.
var (
	ErrInvalidAmount          = stderrors.New("invalid amount")
	ErrInsufficientReserve    = stderrors.New("insufficient reserve")
	ErrInsufficientBalance    = stderrors.New("insufficient balance")
	ErrStalePrice             = stderrors.New("stale price")
	ErrSlippageExceeded       = stderrors.New("slippage exceeded")
	ErrInsufficientCollateral = stderrors.New("insufficient collateral")
	ErrLoanPastDue            = stderrors.New("loan past due")
	ErrUnauthorized           = stderrors.New("unauthorized")

	ErrInsufficientRepayment = stderrors.New("repayment below principal")
	ErrLoanNotFound          = stderrors.New("loan not found")
	ErrLoanNotPastDue        = stderrors.New("loan not past due")
	ErrOverflow              = stderrors.New("amount overflow")
	ErrSupplyCapExceeded     = stderrors.New("pegged supply cap exceeded")
)

// IsInvalidAmount reports whether err belongs to the invalid amount kind. A
// repayment below principal is an invalid amount supplied by the caller.
func IsInvalidAmount(err error) bool {
	return stderrors.Is(err, ErrInvalidAmount) || stderrors.Is(err, ErrInsufficientRepayment)
}
