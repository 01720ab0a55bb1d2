package heap

import (
	"fmt"
	"sync"

	"relstore/pkg/buffer"
	"relstore/pkg/primitives"
	"relstore/pkg/tuple"
)

// File is a table heap: an ordered set of heap pages owned by one
// table, reached through the buffer pool. The page directory is kept in
// memory alongside the catalog.
type File struct {
	pool   *buffer.Pool
	schema *tuple.Schema
	table  primitives.TableID

	mu      sync.RWMutex
	pageIDs []primitives.PageID
}

// NewFile creates an empty heap for table.
func NewFile(pool *buffer.Pool, table primitives.TableID, schema *tuple.Schema) *File {
	return &File{pool: pool, schema: schema, table: table}
}

// Schema returns the heap's tuple schema.
func (f *File) Schema() *tuple.Schema { return f.schema }

// TableID returns the owning table.
func (f *File) TableID() primitives.TableID { return f.table }

// PageIDs snapshots the heap's page directory.
func (f *File) PageIDs() []primitives.PageID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]primitives.PageID, len(f.pageIDs))
	copy(out, f.pageIDs)
	return out
}

// InsertTuple stores t in the first page with room, extending the heap
// when every page is full. The assigned record id is stored on t and
// returned.
func (f *File) InsertTuple(t *tuple.Tuple) (primitives.RID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range f.pageIDs {
		rid, ok, err := f.tryInsert(id, t)
		if err != nil {
			return primitives.RID{}, err
		}
		if ok {
			return rid, nil
		}
	}

	p, err := f.pool.NewPage()
	if err != nil {
		return primitives.RID{}, err
	}
	if p == nil {
		return primitives.RID{}, fmt.Errorf("heap insert: no frame available")
	}
	f.pageIDs = append(f.pageIDs, p.ID())
	p.WLatch()
	hp := AsHeapPage(p, f.schema)
	slot, ok, err := hp.Insert(t)
	p.WUnlatch()
	f.pool.UnpinPage(p.ID(), true)
	if err != nil {
		return primitives.RID{}, err
	}
	if !ok {
		return primitives.RID{}, fmt.Errorf("heap insert: fresh page full")
	}
	rid := primitives.NewRID(p.ID(), primitives.SlotID(slot))
	t.RID = rid
	return rid, nil
}

func (f *File) tryInsert(id primitives.PageID, t *tuple.Tuple) (primitives.RID, bool, error) {
	p, err := f.pool.FetchPage(id)
	if err != nil {
		return primitives.RID{}, false, err
	}
	if p == nil {
		return primitives.RID{}, false, fmt.Errorf("heap insert: no frame available")
	}
	p.WLatch()
	slot, ok, err := AsHeapPage(p, f.schema).Insert(t)
	p.WUnlatch()
	f.pool.UnpinPage(id, ok)
	if err != nil || !ok {
		return primitives.RID{}, false, err
	}
	rid := primitives.NewRID(id, primitives.SlotID(slot))
	t.RID = rid
	return rid, true, nil
}

// MarkDelete frees the slot named by rid. It reports false when the
// slot is already free.
func (f *File) MarkDelete(rid primitives.RID) (bool, error) {
	p, err := f.pool.FetchPage(rid.Page)
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, fmt.Errorf("heap delete: no frame available")
	}
	p.WLatch()
	ok := AsHeapPage(p, f.schema).Delete(int(rid.Slot))
	p.WUnlatch()
	f.pool.UnpinPage(rid.Page, ok)
	return ok, nil
}

// GetTuple reads the tuple at rid.
func (f *File) GetTuple(rid primitives.RID) (*tuple.Tuple, error) {
	p, err := f.pool.FetchPage(rid.Page)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("heap get: no frame available")
	}
	p.RLatch()
	t, ok, err := AsHeapPage(p, f.schema).Get(int(rid.Slot))
	p.RUnlatch()
	f.pool.UnpinPage(rid.Page, false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("heap get: %v is empty", rid)
	}
	t.RID = rid
	return t, nil
}
