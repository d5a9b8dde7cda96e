package loans

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	coreerrors "assetpool/core/errors"
	"assetpool/core/events"
	"assetpool/core/types"
	"assetpool/crypto"
	nativecommon "assetpool/native/common"
	"assetpool/state/bank"
)

var (
	errNilBook         = errors.New("loans: book not initialised")
	errIssuerMissing   = errors.New("loans: issuer not configured")
	errMissingAsset    = errors.New("loans: collateral asset required")
	errMissingTreasury = errors.New("loans: treasury address required")
)

const moduleName = nativecommon.ModuleLoans

// DefaultCollateralRatioPct is the minimum collateral, as a percentage of the
// principal, locked when a loan opens.
const DefaultCollateralRatioPct = 150

// Status tracks the loan lifecycle.
type Status uint8

const (
	StatusActive Status = iota
	StatusRepaid
	StatusDefaulted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusRepaid:
		return "repaid"
	case StatusDefaulted:
		return "defaulted"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Loan is an over-collateralised position in the pegged unit.
type Loan struct {
	ID         string
	Borrower   crypto.Address
	Principal  uint64
	Collateral uint64
	RateBps    uint64
	CreatedAt  uint64
	DueTime    uint64
	Status     Status
}

// PastDue reports whether the loan can no longer be repaid at now.
func (l Loan) PastDue(now uint64) bool { return now > l.DueTime }

// Config wires a Book to its assets and accounts.
type Config struct {
	CollateralAsset    types.Asset
	CollateralRatioPct uint64
	// Custody holds locked collateral. Defaults to the loans module address.
	Custody crypto.Address
	// Treasury receives collateral seized from past-due loans.
	Treasury crypto.Address
}

// Book records active loans and moves collateral and pegged units through the
// ledger.
type Book struct {
	mu         sync.Mutex
	cfg        Config
	loans      map[string]*Loan
	issuer     *Issuer
	capability *MintCapability
	ledger     bank.Ledger
	newID      func() string

	pauses  nativecommon.PauseView
	emitter events.Emitter
	journal Journal
}

// NewBook constructs a loan book. The capability must belong to issuer.
func NewBook(cfg Config, ledger bank.Ledger, issuer *Issuer, capability *MintCapability) (*Book, error) {
	if ledger == nil {
		return nil, fmt.Errorf("loans: ledger not configured")
	}
	if issuer == nil {
		return nil, errIssuerMissing
	}
	if err := issuer.authorise(capability); err != nil {
		return nil, err
	}
	if !cfg.CollateralAsset.Valid() {
		return nil, errMissingAsset
	}
	if cfg.CollateralAsset == issuer.Asset() {
		return nil, fmt.Errorf("loans: collateral and pegged asset must differ")
	}
	if cfg.Treasury.IsZero() {
		return nil, errMissingTreasury
	}
	if cfg.CollateralRatioPct == 0 {
		cfg.CollateralRatioPct = DefaultCollateralRatioPct
	}
	if cfg.CollateralRatioPct < DefaultCollateralRatioPct {
		return nil, fmt.Errorf("loans: collateral ratio %d%% below %d%%", cfg.CollateralRatioPct, DefaultCollateralRatioPct)
	}
	if cfg.Custody.IsZero() {
		cfg.Custody = crypto.ModuleAddress(moduleName)
	}
	return &Book{
		cfg:        cfg,
		loans:      make(map[string]*Loan),
		issuer:     issuer,
		capability: capability,
		ledger:     ledger,
		newID:      uuid.NewString,
		emitter:    events.NoopEmitter{},
	}, nil
}

func (b *Book) SetPauses(p nativecommon.PauseView) {
	if b == nil {
		return
	}
	b.pauses = p
}

func (b *Book) SetEmitter(emitter events.Emitter) {
	if b == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	b.emitter = emitter
}

// SetIDSource overrides loan identifier generation.
func (b *Book) SetIDSource(fn func() string) {
	if b == nil || fn == nil {
		return
	}
	b.newID = fn
}

// Config returns the book configuration with defaults applied.
func (b *Book) Config() Config { return b.cfg }

// Issuer exposes the pegged unit issuer.
func (b *Book) Issuer() *Issuer { return b.issuer }

// SufficientCollateral reports whether collateral covers principal at the
// configured ratio. The comparison runs in 256-bit arithmetic.
func SufficientCollateral(collateral, principal, ratioPct uint64) bool {
	lhs := new(uint256.Int).Mul(uint256.NewInt(collateral), uint256.NewInt(100))
	rhs := new(uint256.Int).Mul(uint256.NewInt(principal), uint256.NewInt(ratioPct))
	return !lhs.Lt(rhs)
}

// CreateLoan locks collateral from the borrower and mints principal pegged
// units to them.
func (b *Book) CreateLoan(borrower crypto.Address, collateral, principal, durationMs, rateBps, now uint64) (Loan, error) {
	if b == nil {
		return Loan{}, errNilBook
	}
	if err := nativecommon.Guard(b.pauses, moduleName); err != nil {
		return Loan{}, err
	}
	if borrower.IsZero() {
		return Loan{}, fmt.Errorf("loans: borrower required: %w", coreerrors.ErrUnauthorized)
	}
	if collateral == 0 || principal == 0 {
		return Loan{}, fmt.Errorf("loans: collateral and principal must be positive: %w", coreerrors.ErrInvalidAmount)
	}
	if durationMs == 0 {
		return Loan{}, fmt.Errorf("loans: duration must be positive: %w", coreerrors.ErrInvalidAmount)
	}
	due := now + durationMs
	if due < now {
		return Loan{}, fmt.Errorf("loans: due time: %w", coreerrors.ErrOverflow)
	}
	if !SufficientCollateral(collateral, principal, b.cfg.CollateralRatioPct) {
		return Loan{}, fmt.Errorf("loans: collateral %d below %d%% of %d: %w", collateral, b.cfg.CollateralRatioPct, principal, coreerrors.ErrInsufficientCollateral)
	}

	b.mu.Lock()
	id := strings.TrimSpace(b.newID())
	if id == "" {
		b.mu.Unlock()
		return Loan{}, fmt.Errorf("loans: empty loan id")
	}
	if _, exists := b.loans[id]; exists {
		b.mu.Unlock()
		return Loan{}, fmt.Errorf("loans: duplicate loan id %s", id)
	}
	loan := &Loan{
		ID:         id,
		Borrower:   borrower,
		Principal:  principal,
		Collateral: collateral,
		RateBps:    rateBps,
		CreatedAt:  now,
		DueTime:    due,
		Status:     StatusActive,
	}
	lock := bank.Transfer(borrower, b.cfg.Custody, b.cfg.CollateralAsset, collateral)
	commit := b.commitLocked(
		func() { b.loans[id] = loan },
		func() { delete(b.loans, id) },
	)
	if err := b.issuer.mint(b.capability, borrower, principal, lock, commit); err != nil {
		b.mu.Unlock()
		return Loan{}, err
	}
	out := *loan
	emitter := b.emitter
	b.mu.Unlock()

	emitter.Emit(events.LoanCreated{
		LoanID:     out.ID,
		Borrower:   borrower,
		Collateral: collateral,
		Principal:  principal,
		RateBps:    rateBps,
		DueTime:    due,
		Timestamp:  now,
	})
	return out, nil
}

// RepayLoan burns the repayment from the borrower and releases the full
// collateral. Returns the released collateral.
func (b *Book) RepayLoan(caller crypto.Address, loanID string, repayment, now uint64) (uint64, error) {
	if b == nil {
		return 0, errNilBook
	}
	if err := nativecommon.Guard(b.pauses, moduleName); err != nil {
		return 0, err
	}

	b.mu.Lock()
	loan, ok := b.loans[strings.TrimSpace(loanID)]
	if !ok {
		b.mu.Unlock()
		return 0, fmt.Errorf("loans: %q: %w", loanID, coreerrors.ErrLoanNotFound)
	}
	if caller != loan.Borrower {
		b.mu.Unlock()
		return 0, fmt.Errorf("loans: %s does not own loan %s: %w", caller, loan.ID, coreerrors.ErrUnauthorized)
	}
	if loan.PastDue(now) {
		b.mu.Unlock()
		return 0, fmt.Errorf("loans: loan %s was due at %d: %w", loan.ID, loan.DueTime, coreerrors.ErrLoanPastDue)
	}
	if repayment < loan.Principal {
		b.mu.Unlock()
		return 0, fmt.Errorf("loans: repayment %d below principal %d: %w", repayment, loan.Principal, coreerrors.ErrInsufficientRepayment)
	}
	release := bank.Transfer(b.cfg.Custody, loan.Borrower, b.cfg.CollateralAsset, loan.Collateral)
	commit := b.commitLocked(
		func() { delete(b.loans, loan.ID) },
		func() { b.loans[loan.ID] = loan },
	)
	if err := b.issuer.burn(b.capability, caller, repayment, release, commit); err != nil {
		b.mu.Unlock()
		return 0, err
	}
	loan.Status = StatusRepaid
	released := loan.Collateral
	emitter := b.emitter
	b.mu.Unlock()

	emitter.Emit(events.LoanRepaid{
		LoanID:     loan.ID,
		Borrower:   loan.Borrower,
		Repayment:  repayment,
		Collateral: released,
		Timestamp:  now,
	})
	return released, nil
}

// SeizeDefaulted moves the collateral of a past-due loan to the treasury and
// closes the loan. Anyone may trigger it once the due time has passed; the
// borrower keeps the pegged units.
func (b *Book) SeizeDefaulted(caller crypto.Address, loanID string, now uint64) (Loan, error) {
	if b == nil {
		return Loan{}, errNilBook
	}
	if err := nativecommon.Guard(b.pauses, moduleName); err != nil {
		return Loan{}, err
	}

	b.mu.Lock()
	loan, ok := b.loans[strings.TrimSpace(loanID)]
	if !ok {
		b.mu.Unlock()
		return Loan{}, fmt.Errorf("loans: %q: %w", loanID, coreerrors.ErrLoanNotFound)
	}
	if !loan.PastDue(now) {
		b.mu.Unlock()
		return Loan{}, fmt.Errorf("loans: loan %s due at %d: %w", loan.ID, loan.DueTime, coreerrors.ErrLoanNotPastDue)
	}
	seize := bank.Transfer(b.cfg.Custody, b.cfg.Treasury, b.cfg.CollateralAsset, loan.Collateral)
	commit := b.commitLocked(
		func() { delete(b.loans, loan.ID) },
		func() { b.loans[loan.ID] = loan },
	)
	if err := commit(seize, b.issuer.Supply()); err != nil {
		b.mu.Unlock()
		return Loan{}, err
	}
	loan.Status = StatusDefaulted
	out := *loan
	emitter := b.emitter
	b.mu.Unlock()

	emitter.Emit(events.LoanDefaulted{
		LoanID:     out.ID,
		Borrower:   out.Borrower,
		Caller:     caller,
		Collateral: out.Collateral,
		Principal:  out.Principal,
		Timestamp:  now,
	})
	return out, nil
}

// Get returns an active loan.
func (b *Book) Get(loanID string) (Loan, error) {
	if b == nil {
		return Loan{}, errNilBook
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	loan, ok := b.loans[strings.TrimSpace(loanID)]
	if !ok {
		return Loan{}, fmt.Errorf("loans: %q: %w", loanID, coreerrors.ErrLoanNotFound)
	}
	return *loan, nil
}

// List returns the active loans of borrower, or every active loan when
// borrower is zero, oldest first.
func (b *Book) List(borrower crypto.Address) []Loan {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listLocked(borrower)
}

func (b *Book) listLocked(borrower crypto.Address) []Loan {
	out := make([]Loan, 0, len(b.loans))
	for _, loan := range b.loans {
		if borrower.IsZero() || loan.Borrower == borrower {
			out = append(out, *loan)
		}
	}
	sortLoans(out)
	return out
}

// PastDue lists active loans eligible for seizure at now.
func (b *Book) PastDue(now uint64) []Loan {
	all := b.List(crypto.Address{})
	out := all[:0]
	for _, loan := range all {
		if loan.PastDue(now) {
			out = append(out, loan)
		}
	}
	return out
}

func sortLoans(loans []Loan) {
	sort.Slice(loans, func(i, j int) bool {
		if loans[i].CreatedAt != loans[j].CreatedAt {
			return loans[i].CreatedAt < loans[j].CreatedAt
		}
		return loans[i].ID < loans[j].ID
	})
}

// Snapshot is the persisted view of the book and the issuer supply.
type Snapshot struct {
	Loans  []Loan
	Supply uint64
}

func (b *Book) Snapshot() Snapshot {
	if b == nil {
		return Snapshot{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{Loans: b.listLocked(crypto.Address{}), Supply: b.issuer.Supply()}
}

// Restore replaces the active loans and the issuer supply.
func (b *Book) Restore(s Snapshot) error {
	if b == nil {
		return errNilBook
	}
	loans := make(map[string]*Loan, len(s.Loans))
	for i := range s.Loans {
		loan := s.Loans[i]
		if loan.ID == "" {
			return fmt.Errorf("loans: snapshot loan without id")
		}
		if _, dup := loans[loan.ID]; dup {
			return fmt.Errorf("loans: duplicate loan id %s in snapshot", loan.ID)
		}
		if loan.Status != StatusActive {
			continue
		}
		loans[loan.ID] = &loan
	}
	if err := b.issuer.RestoreSupply(b.capability, s.Supply); err != nil {
		return err
	}
	b.mu.Lock()
	b.loans = loans
	b.mu.Unlock()
	return nil
}
