package heap

import (
	"relstore/pkg/primitives"
	"relstore/pkg/tuple"
)

// Iterator walks every live tuple of a heap in page/slot order.
type Iterator struct {
	file    *File
	pageIDs []primitives.PageID
	pageIdx int
	slot    int

	next *tuple.Tuple
	err  error
}

// Iterate starts a scan over the heap's current pages.
func (f *File) Iterate() *Iterator {
	return &Iterator{file: f, pageIDs: f.PageIDs(), slot: -1}
}

// Next returns the next live tuple, or nil at the end of the heap.
func (it *Iterator) Next() (*tuple.Tuple, error) {
	if it.err != nil {
		return nil, it.err
	}
	for it.pageIdx < len(it.pageIDs) {
		id := it.pageIDs[it.pageIdx]
		t, slot, err := it.scanPage(id)
		if err != nil {
			it.err = err
			return nil, err
		}
		if t != nil {
			it.slot = slot
			t.RID = primitives.NewRID(id, primitives.SlotID(slot))
			return t, nil
		}
		it.pageIdx++
		it.slot = -1
	}
	return nil, nil
}

// scanPage finds the next used slot after it.slot on page id.
func (it *Iterator) scanPage(id primitives.PageID) (*tuple.Tuple, int, error) {
	p, err := it.file.pool.FetchPage(id)
	if err != nil {
		return nil, 0, err
	}
	if p == nil {
		return nil, 0, ErrNoFrame
	}
	defer it.file.pool.UnpinPage(id, false)
	p.RLatch()
	defer p.RUnlatch()

	hp := AsHeapPage(p, it.file.schema)
	for slot := it.slot + 1; slot < SlotCount(it.file.schema); slot++ {
		if !hp.SlotUsed(slot) {
			continue
		}
		t, _, err := hp.Get(slot)
		if err != nil {
			return nil, 0, err
		}
		return t, slot, nil
	}
	return nil, 0, nil
}
