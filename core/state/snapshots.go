package state

import (
	"fmt"

	"assetpool/core/types"
	"assetpool/crypto"
	"assetpool/native/loans"
	"assetpool/native/oracle"
	"assetpool/native/pool"
	"assetpool/storage"
)

func oracleKey(asset types.Asset) []byte { return []byte("oracle/" + asset.String()) }

func poolKey(a, b types.Asset) []byte { return []byte("pool/" + a.String() + "/" + b.String()) }

var loanBookKey = []byte("loans/book")

type storedAddress struct {
	Prefix string
	Bytes  [crypto.AddressLength]byte
}

func newStoredAddress(addr crypto.Address) storedAddress {
	out := storedAddress{Prefix: string(addr.Prefix())}
	copy(out.Bytes[:], addr.Bytes())
	return out
}

func (s storedAddress) toAddress() crypto.Address {
	if s.Prefix == "" && s.Bytes == [crypto.AddressLength]byte{} {
		return crypto.Address{}
	}
	return crypto.NewAddress(crypto.AddressPrefix(s.Prefix), s.Bytes[:])
}

type storedOracle struct {
	Asset      string
	Price      uint64
	LastUpdate uint64
}

type storedPosition struct {
	Provider storedAddress
	Shares   uint64
}

type storedPool struct {
	ReserveA  uint64
	ReserveB  uint64
	Supply    uint64
	FeeBps    uint64
	Positions []storedPosition
}

type storedLoan struct {
	ID         string
	Borrower   storedAddress
	Principal  uint64
	Collateral uint64
	RateBps    uint64
	CreatedAt  uint64
	DueTime    uint64
	Status     uint8
}

type storedBook struct {
	Supply uint64
	Loans  []storedLoan
}

func (m *Manager) stageOracle(batch *storage.Batch, s oracle.Snapshot) error {
	return m.KVStage(batch, oracleKey(s.Asset), &storedOracle{Asset: s.Asset.String(), Price: s.Price, LastUpdate: s.LastUpdate})
}

// LoadOracle returns the stored quote for asset.
func (m *Manager) LoadOracle(asset types.Asset) (oracle.Snapshot, bool, error) {
	var stored storedOracle
	ok, err := m.KVGet(oracleKey(asset), &stored)
	if err != nil || !ok {
		return oracle.Snapshot{}, ok, err
	}
	return oracle.Snapshot{Asset: types.Asset(stored.Asset), Price: stored.Price, LastUpdate: stored.LastUpdate}, true, nil
}

func (m *Manager) stagePool(batch *storage.Batch, a, b types.Asset, s pool.Snapshot) error {
	stored := &storedPool{
		ReserveA:  s.ReserveA,
		ReserveB:  s.ReserveB,
		Supply:    s.Supply,
		FeeBps:    s.FeeBps,
		Positions: make([]storedPosition, 0, len(s.Positions)),
	}
	for _, pos := range s.Positions {
		stored.Positions = append(stored.Positions, storedPosition{Provider: newStoredAddress(pos.Provider), Shares: pos.Shares})
	}
	return m.KVStage(batch, poolKey(a, b), stored)
}

// LoadPool returns the stored a/b pool.
func (m *Manager) LoadPool(a, b types.Asset) (pool.Snapshot, bool, error) {
	var stored storedPool
	ok, err := m.KVGet(poolKey(a, b), &stored)
	if err != nil || !ok {
		return pool.Snapshot{}, ok, err
	}
	out := pool.Snapshot{
		ReserveA:  stored.ReserveA,
		ReserveB:  stored.ReserveB,
		Supply:    stored.Supply,
		FeeBps:    stored.FeeBps,
		Positions: make([]pool.Position, 0, len(stored.Positions)),
	}
	for _, pos := range stored.Positions {
		out.Positions = append(out.Positions, pool.Position{Provider: pos.Provider.toAddress(), Shares: pos.Shares})
	}
	return out, true, nil
}

func (m *Manager) stageLoanBook(batch *storage.Batch, s loans.Snapshot) error {
	stored := &storedBook{Supply: s.Supply, Loans: make([]storedLoan, 0, len(s.Loans))}
	for _, loan := range s.Loans {
		stored.Loans = append(stored.Loans, storedLoan{
			ID:         loan.ID,
			Borrower:   newStoredAddress(loan.Borrower),
			Principal:  loan.Principal,
			Collateral: loan.Collateral,
			RateBps:    loan.RateBps,
			CreatedAt:  loan.CreatedAt,
			DueTime:    loan.DueTime,
			Status:     uint8(loan.Status),
		})
	}
	return m.KVStage(batch, loanBookKey, stored)
}

// LoadLoanBook returns the stored loan book.
func (m *Manager) LoadLoanBook() (loans.Snapshot, bool, error) {
	var stored storedBook
	ok, err := m.KVGet(loanBookKey, &stored)
	if err != nil || !ok {
		return loans.Snapshot{}, ok, err
	}
	out := loans.Snapshot{Supply: stored.Supply, Loans: make([]loans.Loan, 0, len(stored.Loans))}
	for _, loan := range stored.Loans {
		if loan.Status > uint8(loans.StatusDefaulted) {
			return loans.Snapshot{}, false, fmt.Errorf("state: loan %s has unknown status %d", loan.ID, loan.Status)
		}
		out.Loans = append(out.Loans, loans.Loan{
			ID:         loan.ID,
			Borrower:   loan.Borrower.toAddress(),
			Principal:  loan.Principal,
			Collateral: loan.Collateral,
			RateBps:    loan.RateBps,
			CreatedAt:  loan.CreatedAt,
			DueTime:    loan.DueTime,
			Status:     loans.Status(loan.Status),
		})
	}
	return out, true, nil
}
