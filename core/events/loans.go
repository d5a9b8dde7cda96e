package events

import (
	"strings"

	"assetpool/core/types"
	"assetpool/crypto"
)

const (
	// TypeLoanCreated is emitted when collateral is locked and principal minted.
	TypeLoanCreated = "loans.created"
	// TypeLoanRepaid is emitted when a borrower repays and reclaims collateral.
	TypeLoanRepaid = "loans.repaid"
	// TypeLoanDefaulted is emitted when collateral of a past-due loan is seized.
	TypeLoanDefaulted = "loans.defaulted"
)

type LoanCreated struct {
	LoanID     string
	Borrower   crypto.Address
	Collateral uint64
	Principal  uint64
	RateBps    uint64
	DueTime    uint64
	Timestamp  uint64
}

func (LoanCreated) EventType() string { return TypeLoanCreated }

func (e LoanCreated) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanCreated,
		Attributes: map[string]string{
			"loanId":     strings.TrimSpace(e.LoanID),
			"borrower":   e.Borrower.String(),
			"collateral": formatAmount(e.Collateral),
			"principal":  formatAmount(e.Principal),
			"rateBps":    formatAmount(e.RateBps),
			"dueTime":    formatAmount(e.DueTime),
			"timestamp":  formatAmount(e.Timestamp),
		},
	}
}

func (e LoanCreated) Record() Record {
	return Record{
		Kind:  TypeLoanCreated,
		Actor: e.Borrower.String(),
		Amounts: map[string]uint64{
			"collateral": e.Collateral,
			"principal":  e.Principal,
			"due_time":   e.DueTime,
		},
		Timestamp: e.Timestamp,
	}
}

type LoanRepaid struct {
	LoanID     string
	Borrower   crypto.Address
	Repayment  uint64
	Collateral uint64
	Timestamp  uint64
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanRepaid,
		Attributes: map[string]string{
			"loanId":     strings.TrimSpace(e.LoanID),
			"borrower":   e.Borrower.String(),
			"repayment":  formatAmount(e.Repayment),
			"collateral": formatAmount(e.Collateral),
			"timestamp":  formatAmount(e.Timestamp),
		},
	}
}

func (e LoanRepaid) Record() Record {
	return Record{
		Kind:  TypeLoanRepaid,
		Actor: e.Borrower.String(),
		Amounts: map[string]uint64{
			"repayment":  e.Repayment,
			"collateral": e.Collateral,
		},
		Timestamp: e.Timestamp,
	}
}

// LoanDefaulted records collateral moved to the treasury after the due time.
// Caller is whoever triggered the seizure; the borrower keeps the principal.
type LoanDefaulted struct {
	LoanID     string
	Borrower   crypto.Address
	Caller     crypto.Address
	Collateral uint64
	Principal  uint64
	Timestamp  uint64
}

func (LoanDefaulted) EventType() string { return TypeLoanDefaulted }

func (e LoanDefaulted) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanDefaulted,
		Attributes: map[string]string{
			"loanId":     strings.TrimSpace(e.LoanID),
			"borrower":   e.Borrower.String(),
			"caller":     e.Caller.String(),
			"collateral": formatAmount(e.Collateral),
			"principal":  formatAmount(e.Principal),
			"timestamp":  formatAmount(e.Timestamp),
		},
	}
}

func (e LoanDefaulted) Record() Record {
	return Record{
		Kind:  TypeLoanDefaulted,
		Actor: e.Caller.String(),
		Amounts: map[string]uint64{
			"collateral": e.Collateral,
			"principal":  e.Principal,
		},
		Timestamp: e.Timestamp,
	}
}
