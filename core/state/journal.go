package state

import (
	"assetpool/core/types"
	"assetpool/native/loans"
	"assetpool/native/oracle"
	"assetpool/native/pool"
	"assetpool/state/bank"
	"assetpool/storage"
)

// Journal commits resource mutations to the database. A mutation's ledger
// postings and the snapshot of the resource that made them are written in one
// batch. Resources call the journal while holding their own lock, so
// snapshots reach disk in the order the mutations happened.
type Journal struct {
	db     storage.Database
	state  *Manager
	ledger *bank.StoreLedger
}

// NewJournal wires a journal, its state manager and its balance ledger over
// db.
func NewJournal(db storage.Database) *Journal {
	return &Journal{db: db, state: NewManager(db), ledger: bank.NewStoreLedger(db)}
}

// Ledger returns the balance ledger the journal writes postings to.
// Resources attached to the journal must use it as their ledger.
func (j *Journal) Ledger() *bank.StoreLedger { return j.ledger }

// State returns the underlying state manager.
func (j *Journal) State() *Manager { return j.state }

// CommitOracle implements oracle.Journal.
func (j *Journal) CommitOracle(s oracle.Snapshot) error {
	batch := &storage.Batch{}
	if err := j.state.stageOracle(batch, s); err != nil {
		return err
	}
	return j.db.Write(batch)
}

// CommitPool implements pool.Journal.
func (j *Journal) CommitPool(assetA, assetB types.Asset, s pool.Snapshot, postings []bank.Posting) error {
	batch := &storage.Batch{}
	if err := j.state.stagePool(batch, assetA, assetB, s); err != nil {
		return err
	}
	return j.ledger.ApplyWith(postings, batch)
}

// CommitLoanBook implements loans.Journal.
func (j *Journal) CommitLoanBook(s loans.Snapshot, postings []bank.Posting) error {
	batch := &storage.Batch{}
	if err := j.state.stageLoanBook(batch, s); err != nil {
		return err
	}
	return j.ledger.ApplyWith(postings, batch)
}

// Attach routes every later mutation of the resources through the journal.
// Any of them may be nil.
func (j *Journal) Attach(o *oracle.Oracle, p *pool.Pool, b *loans.Book) {
	if o != nil {
		o.SetJournal(j)
	}
	if p != nil {
		p.SetJournal(j)
	}
	if b != nil {
		b.SetJournal(j)
	}
}

// Restore loads stored snapshots into the resources. Resources with nothing
// stored are left as constructed.
func (j *Journal) Restore(o *oracle.Oracle, p *pool.Pool, b *loans.Book) error {
	if o != nil {
		snap, ok, err := j.state.LoadOracle(o.Asset())
		if err != nil {
			return err
		}
		if ok {
			if err := o.Restore(snap); err != nil {
				return err
			}
		}
	}
	if p != nil {
		st := p.State()
		snap, ok, err := j.state.LoadPool(st.AssetA, st.AssetB)
		if err != nil {
			return err
		}
		if ok {
			if err := p.Restore(snap); err != nil {
				return err
			}
		}
	}
	if b != nil {
		snap, ok, err := j.state.LoadLoanBook()
		if err != nil {
			return err
		}
		if ok {
			if err := b.Restore(snap); err != nil {
				return err
			}
		}
	}
	return nil
}
