package execution

import (
	"fmt"

	"relstore/pkg/catalog"
	"relstore/pkg/concurrency/lock"
	"relstore/pkg/primitives"
	"relstore/pkg/storage/index"
	"relstore/pkg/tuple"
)

// IndexScan walks an index iterator in key order and reads rows back
// through the table heap. Lock discipline matches SeqScan: IS on the
// table, S per row, early release at read-committed, nothing at
// read-uncommitted.
type IndexScan struct {
	*BaseIterator
	ctx   *Context
	table *catalog.TableInfo
	idx   *catalog.IndexInfo
	iter  *index.Iterator

	startKey  *int64
	lockedRow primitives.RID
	hasLocked bool
}

// NewIndexScan builds a scan over indexID of tableID. A non-nil
// startKey begins the walk at the first key ≥ startKey.
func NewIndexScan(ctx *Context, tableID primitives.TableID, indexID primitives.IndexID, startKey *int64) (*IndexScan, error) {
	info, err := ctx.Catalog.GetTable(tableID)
	if err != nil {
		return nil, err
	}
	var idx *catalog.IndexInfo
	for _, cand := range info.Indexes {
		if cand.ID == indexID {
			idx = cand
			break
		}
	}
	if idx == nil {
		return nil, fmt.Errorf("table %q has no index %d", info.Name, indexID)
	}
	s := &IndexScan{ctx: ctx, table: info, idx: idx, startKey: startKey}
	s.BaseIterator = newBaseIterator(s.readNext)
	return s, nil
}

func (s *IndexScan) Schema() *tuple.Schema { return s.table.Schema }

func (s *IndexScan) Open() error {
	if !s.ctx.readUncommitted() {
		if err := s.ctx.Locks.LockTable(s.ctx.Txn, lock.IntentionShared, s.table.ID); err != nil {
			return err
		}
	}
	var err error
	if s.startKey != nil {
		s.iter, err = s.idx.Tree.BeginAt(*s.startKey)
	} else {
		s.iter, err = s.idx.Tree.Begin()
	}
	if err != nil {
		return err
	}
	s.markOpened()
	return nil
}

func (s *IndexScan) readNext() (*tuple.Tuple, error) {
	if err := s.releasePrevious(); err != nil {
		return nil, err
	}
	if !s.iter.Valid() {
		return nil, nil
	}
	rid := s.iter.RID()
	s.iter.Next()

	if !s.ctx.readUncommitted() {
		if err := s.ctx.Locks.LockRow(s.ctx.Txn, lock.Shared, s.table.ID, rid); err != nil {
			return nil, err
		}
		s.lockedRow = rid
		s.hasLocked = true
	}
	return s.table.Heap.GetTuple(rid)
}

func (s *IndexScan) releasePrevious() error {
	if !s.hasLocked || !s.ctx.readCommitted() {
		return nil
	}
	s.hasLocked = false
	return s.ctx.Locks.UnlockRow(s.ctx.Txn, s.table.ID, s.lockedRow)
}

func (s *IndexScan) Close() error {
	if s.iter != nil {
		s.iter.Close()
	}
	s.markClosed()
	return nil
}
