package execution

import (
	"relstore/pkg/catalog"
	"relstore/pkg/concurrency/lock"
	"relstore/pkg/primitives"
	"relstore/pkg/tuple"
	"relstore/pkg/types"
)

// countSchema is the single-column output every writing operator emits:
// how many rows it touched.
var countSchema = &tuple.Schema{Names: []string{"count"}, Types: []types.Type{types.IntType}}

// Insert pulls rows from its child and stores them in the table. Lock
// discipline: IX on the table at open, X on every row it inserts. Every
// affected secondary index gains the new entry.
type Insert struct {
	*BaseIterator
	ctx   *Context
	table *catalog.TableInfo
	child Executor
	done  bool
}

// NewInsert builds an insert into tableID fed by child.
func NewInsert(ctx *Context, tableID primitives.TableID, child Executor) (*Insert, error) {
	info, err := ctx.Catalog.GetTable(tableID)
	if err != nil {
		return nil, err
	}
	in := &Insert{ctx: ctx, table: info, child: child}
	in.BaseIterator = newBaseIterator(in.readNext)
	return in, nil
}

func (in *Insert) Schema() *tuple.Schema { return countSchema }

func (in *Insert) Open() error {
	if err := in.child.Open(); err != nil {
		return err
	}
	if err := in.ctx.Locks.LockTable(in.ctx.Txn, lock.IntentionExclusive, in.table.ID); err != nil {
		return err
	}
	in.markOpened()
	return nil
}

// readNext drains the child, inserting every row, then emits one count
// tuple.
func (in *Insert) readNext() (*tuple.Tuple, error) {
	if in.done {
		return nil, nil
	}
	count := int64(0)
	for {
		has, err := in.child.HasNext()
		if err != nil {
			return nil, err
		}
		if !has {
			break
		}
		t, err := in.child.Next()
		if err != nil {
			return nil, err
		}
		rid, err := in.table.Heap.InsertTuple(t)
		if err != nil {
			return nil, err
		}
		if err := in.ctx.Locks.LockRow(in.ctx.Txn, lock.Exclusive, in.table.ID, rid); err != nil {
			return nil, err
		}
		for _, idx := range in.table.Indexes {
			key, err := catalog.IndexKey(t, idx)
			if err != nil {
				return nil, err
			}
			if _, err := idx.Tree.Insert(key, rid); err != nil {
				return nil, err
			}
		}
		count++
	}
	in.done = true
	return &tuple.Tuple{Fields: []types.Field{types.NewIntField(count)}}, nil
}

func (in *Insert) Close() error {
	in.markClosed()
	return in.child.Close()
}
