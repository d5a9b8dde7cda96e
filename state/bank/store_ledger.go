package bank

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"assetpool/core/types"
	"assetpool/crypto"
	"assetpool/storage"
)

var balancePrefix = []byte("bank/")

// StoreLedger persists balances in a storage.Database. Every Apply lands as a
// single database batch.
type StoreLedger struct {
	mu sync.Mutex
	db storage.Database
}

// NewStoreLedger wraps the supplied database.
func NewStoreLedger(db storage.Database) *StoreLedger {
	return &StoreLedger{db: db}
}

func balanceStoreKey(account crypto.Address, asset types.Asset) []byte {
	return []byte(fmt.Sprintf("bank/%s/%s/%s", account.Prefix(), hex.EncodeToString(account.Bytes()), asset))
}

func accountStorePrefix(account crypto.Address) []byte {
	return []byte(fmt.Sprintf("bank/%s/%s/", account.Prefix(), hex.EncodeToString(account.Bytes())))
}

func decodeBalance(raw []byte) (uint64, error) {
	if len(raw) != 8 {
		return 0, fmt.Errorf("bank: corrupt balance entry of %d bytes", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func encodeBalance(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func (l *StoreLedger) load(key balanceKey) (uint64, error) {
	raw, err := l.db.Get(balanceStoreKey(key.account, key.asset))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return decodeBalance(raw)
}

func (l *StoreLedger) BalanceOf(account crypto.Address, asset types.Asset) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(balanceKey{account: account, asset: asset})
}

func (l *StoreLedger) Debit(account crypto.Address, asset types.Asset, amount uint64) error {
	return l.Apply([]Posting{DebitOf(account, asset, amount)})
}

func (l *StoreLedger) Credit(account crypto.Address, asset types.Asset, amount uint64) error {
	return l.Apply([]Posting{CreditOf(account, asset, amount)})
}

// Apply implements Batcher.
func (l *StoreLedger) Apply(postings []Posting) error {
	return l.ApplyWith(postings, nil)
}

// ApplyWith applies the postings and writes extra in the same database
// batch. Either both land or neither does.
func (l *StoreLedger) ApplyWith(postings []Posting, extra *storage.Batch) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	scratch, err := applyToScratch(postings, l.load)
	if err != nil {
		return err
	}
	batch := &storage.Batch{}
	for key, value := range scratch {
		storeKey := balanceStoreKey(key.account, key.asset)
		if value == 0 {
			batch.Delete(storeKey)
			continue
		}
		batch.Put(storeKey, encodeBalance(value))
	}
	batch.Append(extra)
	if batch.Len() == 0 {
		return nil
	}
	return l.db.Write(batch)
}

// Balances returns every non-zero balance held by the account.
func (l *StoreLedger) Balances(account crypto.Address) (map[types.Asset]uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	prefix := accountStorePrefix(account)
	out := make(map[types.Asset]uint64)
	var iterErr error
	err := l.db.Iterate(prefix, func(key, value []byte) bool {
		amount, err := decodeBalance(value)
		if err != nil {
			iterErr = err
			return false
		}
		asset := strings.TrimPrefix(string(key), string(prefix))
		out[types.Asset(asset)] = amount
		return true
	})
	if err != nil {
		return nil, err
	}
	if iterErr != nil {
		return nil, iterErr
	}
	return out, nil
}

// Count returns the number of stored balance entries.
func (l *StoreLedger) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	err := l.db.Iterate(balancePrefix, func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}
