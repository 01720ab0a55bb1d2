package execution

import (
	"relstore/pkg/catalog"
	"relstore/pkg/concurrency/lock"
	"relstore/pkg/primitives"
	"relstore/pkg/storage/heap"
	"relstore/pkg/tuple"
)

// SeqScan yields every live tuple of a table. Lock discipline: IS on
// the table at open (skipped at read-uncommitted), S on each row before
// it is handed out; at read-committed each row's S drops as soon as the
// next row is consumed.
type SeqScan struct {
	*BaseIterator
	ctx   *Context
	table *catalog.TableInfo
	iter  *heap.Iterator

	lockedRow primitives.RID
	hasLocked bool
}

// NewSeqScan builds a scan over tableID.
func NewSeqScan(ctx *Context, tableID primitives.TableID) (*SeqScan, error) {
	info, err := ctx.Catalog.GetTable(tableID)
	if err != nil {
		return nil, err
	}
	s := &SeqScan{ctx: ctx, table: info}
	s.BaseIterator = newBaseIterator(s.readNext)
	return s, nil
}

func (s *SeqScan) Schema() *tuple.Schema { return s.table.Schema }

func (s *SeqScan) Open() error {
	if !s.ctx.readUncommitted() {
		if err := s.ctx.Locks.LockTable(s.ctx.Txn, lock.IntentionShared, s.table.ID); err != nil {
			return err
		}
	}
	s.iter = s.table.Heap.Iterate()
	s.markOpened()
	return nil
}

func (s *SeqScan) readNext() (*tuple.Tuple, error) {
	if err := s.releasePrevious(); err != nil {
		return nil, err
	}
	t, err := s.iter.Next()
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, nil
	}
	if !s.ctx.readUncommitted() {
		if err := s.ctx.Locks.LockRow(s.ctx.Txn, lock.Shared, s.table.ID, t.RID); err != nil {
			return nil, err
		}
		s.lockedRow = t.RID
		s.hasLocked = true
	}
	return t, nil
}

// releasePrevious implements the read-committed early release: the
// previous row's S lock drops when the scan moves past it.
func (s *SeqScan) releasePrevious() error {
	if !s.hasLocked || !s.ctx.readCommitted() {
		return nil
	}
	s.hasLocked = false
	return s.ctx.Locks.UnlockRow(s.ctx.Txn, s.table.ID, s.lockedRow)
}

func (s *SeqScan) Close() error {
	s.markClosed()
	return nil
}
