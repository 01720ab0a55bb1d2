package execution

import (
	"relstore/pkg/catalog"
	"relstore/pkg/concurrency/lock"
	"relstore/pkg/primitives"
	"relstore/pkg/tuple"
	"relstore/pkg/types"
)

// Delete pulls target rows from its child and removes them from the
// table. Lock discipline: IX on the table at open, X on every row
// before it is unlinked. Affected secondary indexes lose their entries.
type Delete struct {
	*BaseIterator
	ctx   *Context
	table *catalog.TableInfo
	child Executor
	done  bool
}

// NewDelete builds a delete on tableID fed by child (typically a scan
// under a filter).
func NewDelete(ctx *Context, tableID primitives.TableID, child Executor) (*Delete, error) {
	info, err := ctx.Catalog.GetTable(tableID)
	if err != nil {
		return nil, err
	}
	d := &Delete{ctx: ctx, table: info, child: child}
	d.BaseIterator = newBaseIterator(d.readNext)
	return d, nil
}

func (d *Delete) Schema() *tuple.Schema { return countSchema }

func (d *Delete) Open() error {
	if err := d.child.Open(); err != nil {
		return err
	}
	if err := d.ctx.Locks.LockTable(d.ctx.Txn, lock.IntentionExclusive, d.table.ID); err != nil {
		return err
	}
	d.markOpened()
	return nil
}

func (d *Delete) readNext() (*tuple.Tuple, error) {
	if d.done {
		return nil, nil
	}
	count := int64(0)
	for {
		has, err := d.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !has {
			break
		}
		t, err := d.child.Next()
		if err != nil {
			return nil, err
		}
		if err := d.ctx.Locks.LockRow(d.ctx.Txn, lock.Exclusive, d.table.ID, t.RID); err != nil {
			return nil, err
		}
		ok, err := d.table.Heap.MarkDelete(t.RID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, idx := range d.table.Indexes {
			key, err := catalog.IndexKey(t, idx)
			if err != nil {
				return nil, err
			}
			if _, err := idx.Tree.Remove(key); err != nil {
				return nil, err
			}
		}
		count++
	}
	d.done = true
	return &tuple.Tuple{Fields: []types.Field{types.NewIntField(count)}}, nil
}

func (d *Delete) Close() error {
	d.markClosed()
	return d.child.Close()
}
