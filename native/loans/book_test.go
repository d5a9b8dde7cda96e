package loans

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	coreerrors "assetpool/core/errors"
	"assetpool/core/events"
	"assetpool/core/types"
	"assetpool/crypto"
	nativecommon "assetpool/native/common"
	"assetpool/state/bank"
)

var (
	collateralAsset = types.NewAsset("soil")
	peggedAsset     = types.NewAsset("pusd")
)

const day = 86_400_000

func testAddress(fill byte) crypto.Address {
	return crypto.NewAddress(crypto.AccountPrefix, bytes.Repeat([]byte{fill}, 20))
}

type fixture struct {
	book     *Book
	issuer   *Issuer
	ledger   *bank.MemLedger
	borrower crypto.Address
	treasury crypto.Address
	recorder *events.Recorder
}

func newFixture(t *testing.T, supplyCap uint64) *fixture {
	t.Helper()
	ledger := bank.NewMemLedger()
	issuer, capability, err := NewIssuer(peggedAsset, supplyCap, ledger)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	f := &fixture{
		issuer:   issuer,
		ledger:   ledger,
		borrower: testAddress(0x01),
		treasury: testAddress(0x7e),
		recorder: &events.Recorder{},
	}
	book, err := NewBook(Config{CollateralAsset: collateralAsset, Treasury: f.treasury}, ledger, issuer, capability)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	seq := 0
	book.SetIDSource(func() string {
		seq++
		return fmt.Sprintf("loan-%d", seq)
	})
	book.SetEmitter(f.recorder)
	f.book = book
	if err := ledger.Credit(f.borrower, collateralAsset, 1_000); err != nil {
		t.Fatalf("fund: %v", err)
	}
	return f
}

func (f *fixture) balance(t *testing.T, account crypto.Address, asset types.Asset) uint64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(account, asset)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal
}

func TestSufficientCollateral(t *testing.T) {
	if !SufficientCollateral(150, 100, 150) {
		t.Fatalf("exactly 150%% must pass")
	}
	if SufficientCollateral(149, 100, 150) {
		t.Fatalf("below 150%% must fail")
	}
	max := ^uint64(0)
	if !SufficientCollateral(max, max/2, 150) {
		t.Fatalf("wide comparison failed")
	}
}

func TestCreateAtThresholdAndRepay(t *testing.T) {
	f := newFixture(t, 0)
	loan, err := f.book.CreateLoan(f.borrower, 150, 100, day, 500, 1_000)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if loan.ID != "loan-1" || loan.DueTime != 1_000+day || loan.Status != StatusActive {
		t.Fatalf("unexpected loan %+v", loan)
	}
	if got := f.balance(t, f.borrower, peggedAsset); got != 100 {
		t.Fatalf("expected 100 pegged units, got %d", got)
	}
	if got := f.balance(t, f.borrower, collateralAsset); got != 850 {
		t.Fatalf("expected collateral locked, balance %d", got)
	}
	custody := f.book.Config().Custody
	if got := f.balance(t, custody, collateralAsset); got != 150 {
		t.Fatalf("custody should hold 150, has %d", got)
	}
	if f.issuer.Supply() != 100 {
		t.Fatalf("unexpected supply %d", f.issuer.Supply())
	}

	released, err := f.book.RepayLoan(f.borrower, loan.ID, 100, 2_000)
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	if released != 150 {
		t.Fatalf("expected 150 released, got %d", released)
	}
	if got := f.balance(t, f.borrower, collateralAsset); got != 1_000 {
		t.Fatalf("collateral not returned: %d", got)
	}
	if got := f.balance(t, f.borrower, peggedAsset); got != 0 {
		t.Fatalf("pegged units not burned: %d", got)
	}
	if f.issuer.Supply() != 0 {
		t.Fatalf("supply not reduced: %d", f.issuer.Supply())
	}
	if _, err := f.book.Get(loan.ID); !errors.Is(err, coreerrors.ErrLoanNotFound) {
		t.Fatalf("expected loan removed, got %v", err)
	}
	emitted := f.recorder.Events()
	if len(emitted) != 2 || emitted[0].EventType() != events.TypeLoanCreated || emitted[1].EventType() != events.TypeLoanRepaid {
		t.Fatalf("unexpected events %+v", emitted)
	}
}

func TestCreateLoanBelowThreshold(t *testing.T) {
	f := newFixture(t, 0)
	if _, err := f.book.CreateLoan(f.borrower, 149, 100, day, 0, 1); !errors.Is(err, coreerrors.ErrInsufficientCollateral) {
		t.Fatalf("expected insufficient collateral, got %v", err)
	}
	if got := f.balance(t, f.borrower, collateralAsset); got != 1_000 {
		t.Fatalf("collateral moved on failure: %d", got)
	}
	if _, err := f.book.CreateLoan(f.borrower, 0, 0, day, 0, 1); !errors.Is(err, coreerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestCreateLoanCollateralShortfallMintsNothing(t *testing.T) {
	f := newFixture(t, 0)
	if _, err := f.book.CreateLoan(f.borrower, 1_500, 1_000, day, 0, 1); !errors.Is(err, coreerrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if f.balance(t, f.borrower, peggedAsset) != 0 || f.issuer.Supply() != 0 {
		t.Fatalf("pegged units minted without collateral")
	}
}

func TestSupplyCap(t *testing.T) {
	f := newFixture(t, 150)
	if _, err := f.book.CreateLoan(f.borrower, 150, 100, day, 0, 1); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.book.CreateLoan(f.borrower, 150, 100, day, 0, 1); !errors.Is(err, coreerrors.ErrSupplyCapExceeded) {
		t.Fatalf("expected cap exceeded, got %v", err)
	}
	if got := f.balance(t, f.borrower, collateralAsset); got != 850 {
		t.Fatalf("second loan locked collateral: %d", got)
	}
}

func TestRepayChecks(t *testing.T) {
	f := newFixture(t, 0)
	loan, err := f.book.CreateLoan(f.borrower, 300, 200, day, 0, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.book.RepayLoan(testAddress(0x02), loan.ID, 200, 1); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.book.RepayLoan(f.borrower, loan.ID, 199, 1); !errors.Is(err, coreerrors.ErrInsufficientRepayment) || !coreerrors.IsInvalidAmount(err) {
		t.Fatalf("expected insufficient repayment, got %v", err)
	}
	if _, err := f.book.RepayLoan(f.borrower, loan.ID, 200, day+1); !errors.Is(err, coreerrors.ErrLoanPastDue) {
		t.Fatalf("expected past due, got %v", err)
	}
	if _, err := f.book.RepayLoan(f.borrower, "missing", 200, 1); !errors.Is(err, coreerrors.ErrLoanNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.book.RepayLoan(f.borrower, loan.ID, 200, day); err != nil {
		t.Fatalf("repay at the due time should succeed: %v", err)
	}
}

func TestSeizeDefaulted(t *testing.T) {
	f := newFixture(t, 0)
	loan, err := f.book.CreateLoan(f.borrower, 300, 200, day, 0, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	keeper := testAddress(0x0c)
	if _, err := f.book.SeizeDefaulted(keeper, loan.ID, day); !errors.Is(err, coreerrors.ErrLoanNotPastDue) {
		t.Fatalf("expected not past due, got %v", err)
	}
	if got := f.book.PastDue(day + 1); len(got) != 1 || got[0].ID != loan.ID {
		t.Fatalf("expected loan listed as past due, got %+v", got)
	}
	seized, err := f.book.SeizeDefaulted(keeper, loan.ID, day+1)
	if err != nil {
		t.Fatalf("seize: %v", err)
	}
	if seized.Status != StatusDefaulted {
		t.Fatalf("unexpected status %s", seized.Status)
	}
	if got := f.balance(t, f.treasury, collateralAsset); got != 300 {
		t.Fatalf("treasury should hold 300, has %d", got)
	}
	if got := f.balance(t, f.borrower, peggedAsset); got != 200 {
		t.Fatalf("borrower keeps principal, has %d", got)
	}
	if len(f.book.List(crypto.Address{})) != 0 {
		t.Fatalf("expected loan removed")
	}
	emitted := f.recorder.Events()
	evt, ok := emitted[len(emitted)-1].(events.LoanDefaulted)
	if !ok || evt.Caller != keeper || evt.Collateral != 300 {
		t.Fatalf("unexpected default event %#v", emitted[len(emitted)-1])
	}
}

func TestListAndSnapshot(t *testing.T) {
	f := newFixture(t, 0)
	other := testAddress(0x03)
	_ = f.ledger.Credit(other, collateralAsset, 500)
	if _, err := f.book.CreateLoan(f.borrower, 150, 100, day, 0, 5); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.book.CreateLoan(other, 300, 100, day, 0, 3); err != nil {
		t.Fatalf("create: %v", err)
	}
	all := f.book.List(crypto.Address{})
	if len(all) != 2 || all[0].Borrower != other {
		t.Fatalf("expected oldest first, got %+v", all)
	}
	if mine := f.book.List(f.borrower); len(mine) != 1 || mine[0].ID != "loan-1" {
		t.Fatalf("unexpected borrower listing %+v", mine)
	}

	snap := f.book.Snapshot()
	ledger := bank.NewMemLedger()
	issuer, capability, err := NewIssuer(peggedAsset, 0, ledger)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	restored, err := NewBook(Config{CollateralAsset: collateralAsset, Treasury: f.treasury}, ledger, issuer, capability)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if issuer.Supply() != 200 || len(restored.List(crypto.Address{})) != 2 {
		t.Fatalf("restored book differs")
	}
}

func TestForeignCapabilityRejected(t *testing.T) {
	ledger := bank.NewMemLedger()
	issuer, _, err := NewIssuer(peggedAsset, 0, ledger)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	_, foreign, err := NewIssuer(peggedAsset, 0, ledger)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	if err := issuer.Mint(foreign, testAddress(0x01), 1); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized mint, got %v", err)
	}
	if err := issuer.Mint(nil, testAddress(0x01), 1); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized mint, got %v", err)
	}
	if _, err := NewBook(Config{CollateralAsset: collateralAsset, Treasury: testAddress(0x7e)}, ledger, issuer, foreign); !errors.Is(err, coreerrors.ErrUnauthorized) {
		t.Fatalf("expected book to reject foreign capability, got %v", err)
	}
}

func TestPausedBook(t *testing.T) {
	f := newFixture(t, 0)
	f.book.SetPauses(nativecommon.NewPauseSet(nativecommon.ModuleLoans))
	if _, err := f.book.CreateLoan(f.borrower, 150, 100, day, 0, 1); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected paused, got %v", err)
	}
}
