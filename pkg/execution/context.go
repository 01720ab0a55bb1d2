package execution

import (
	"relstore/pkg/buffer"
	"relstore/pkg/catalog"
	"relstore/pkg/concurrency/lock"
	"relstore/pkg/concurrency/transaction"
)

// Context bundles what every operator needs: the catalog to resolve
// tables, the buffer pool underneath the heaps and indexes, the lock
// manager, and the transaction the operator tree runs under.
type Context struct {
	Catalog *catalog.Catalog
	Pool    *buffer.Pool
	Locks   *lock.Manager
	Txn     *transaction.Transaction
}

// NewContext builds an executor context.
func NewContext(cat *catalog.Catalog, pool *buffer.Pool, locks *lock.Manager, txn *transaction.Transaction) *Context {
	return &Context{Catalog: cat, Pool: pool, Locks: locks, Txn: txn}
}

// readUncommitted reports whether the context's transaction skips read
// locks entirely.
func (c *Context) readUncommitted() bool {
	return c.Txn.Isolation() == transaction.ReadUncommitted
}

// readCommitted reports whether row read locks drop as soon as the next
// row is consumed.
func (c *Context) readCommitted() bool {
	return c.Txn.Isolation() == transaction.ReadCommitted
}
