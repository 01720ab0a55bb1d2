package execution

import (
	"golang.org/x/sync/errgroup"

	"relstore/pkg/catalog"
	"relstore/pkg/concurrency/lock"
	"relstore/pkg/primitives"
	"relstore/pkg/storage/heap"
	"relstore/pkg/tuple"
)

// ParallelSeqScanConfig sizes the worker fan-out.
type ParallelSeqScanConfig struct {
	NumWorkers     int
	ResultChanSize int
}

// DefaultParallelConfig returns conservative defaults.
func DefaultParallelConfig() ParallelSeqScanConfig {
	return ParallelSeqScanConfig{NumWorkers: 4, ResultChanSize: 256}
}

// ParallelSeqScan scans a table with several workers, each draining
// pages from a shared queue and streaming rows through a channel.
// Row order is not deterministic and Rewind is unsupported.
//
// Lock discipline: IS on the table at open; each worker takes S on the
// rows it reads. Row locks are held to the end of the transaction
// (the read-committed early release needs consumption order, which a
// parallel scan does not have).
type ParallelSeqScan struct {
	*BaseIterator
	ctx   *Context
	table *catalog.TableInfo
	cfg   ParallelSeqScanConfig

	group   *errgroup.Group
	results chan *tuple.Tuple
}

// NewParallelSeqScan builds a parallel scan over tableID.
func NewParallelSeqScan(ctx *Context, tableID primitives.TableID, cfg ParallelSeqScanConfig) (*ParallelSeqScan, error) {
	info, err := ctx.Catalog.GetTable(tableID)
	if err != nil {
		return nil, err
	}
	if cfg.NumWorkers <= 0 {
		cfg = DefaultParallelConfig()
	}
	s := &ParallelSeqScan{ctx: ctx, table: info, cfg: cfg}
	s.BaseIterator = newBaseIterator(s.readNext)
	return s, nil
}

func (s *ParallelSeqScan) Schema() *tuple.Schema { return s.table.Schema }

func (s *ParallelSeqScan) Open() error {
	if !s.ctx.readUncommitted() {
		if err := s.ctx.Locks.LockTable(s.ctx.Txn, lock.IntentionShared, s.table.ID); err != nil {
			return err
		}
	}

	pageIDs := s.table.Heap.PageIDs()
	pageQueue := make(chan primitives.PageID, len(pageIDs))
	for _, id := range pageIDs {
		pageQueue <- id
	}
	close(pageQueue)

	s.results = make(chan *tuple.Tuple, s.cfg.ResultChanSize)
	s.group = new(errgroup.Group)
	for w := 0; w < s.cfg.NumWorkers; w++ {
		s.group.Go(func() error {
			for id := range pageQueue {
				if err := s.scanPage(id); err != nil {
					return err
				}
			}
			return nil
		})
	}
	go func() {
		// The group error, if any, resurfaces on the drained channel.
		s.group.Wait()
		close(s.results)
	}()
	s.markOpened()
	return nil
}

// scanPage reads every live tuple of one page into the result channel.
func (s *ParallelSeqScan) scanPage(id primitives.PageID) error {
	p, err := s.ctx.Pool.FetchPage(id)
	if err != nil {
		return err
	}
	if p == nil {
		return heap.ErrNoFrame
	}
	defer s.ctx.Pool.UnpinPage(id, false)
	p.RLatch()
	defer p.RUnlatch()

	hp := heap.AsHeapPage(p, s.table.Schema)
	for slot := 0; slot < heap.SlotCount(s.table.Schema); slot++ {
		t, ok, err := hp.Get(slot)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		rid := primitives.NewRID(id, primitives.SlotID(slot))
		t.RID = rid
		if !s.ctx.readUncommitted() {
			if err := s.ctx.Locks.LockRow(s.ctx.Txn, lock.Shared, s.table.ID, rid); err != nil {
				return err
			}
		}
		s.results <- t
	}
	return nil
}

func (s *ParallelSeqScan) readNext() (*tuple.Tuple, error) {
	t, ok := <-s.results
	if !ok {
		return nil, s.group.Wait()
	}
	return t, nil
}

func (s *ParallelSeqScan) Close() error {
	s.markClosed()
	if s.results != nil {
		// Drain so workers blocked on the channel can finish.
		for range s.results {
		}
		return s.group.Wait()
	}
	return nil
}
