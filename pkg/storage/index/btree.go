// Package index implements a concurrent B+tree over int64 keys mapped to
// record ids, stored one node per page and protected by latch crabbing.
package index

import (
	"errors"
	"sync"
	"sync/atomic"

	"relstore/pkg/buffer"
	"relstore/pkg/primitives"
	"relstore/pkg/storage/page"
)

// ErrPoolExhausted surfaces buffer-pool starvation during a tree
// operation. Partial structural changes are never left behind.
var ErrPoolExhausted = errors.New("buffer pool exhausted")

// op is the descent kind; safety rules differ per operation.
type op int

const (
	opRead op = iota
	opInsert
	opDelete
)

// BTree is an ordered map from int64 keys to RIDs. All mutating
// operations descend with latch crabbing; a tree-wide mutex is taken
// only to create the very first root.
type BTree struct {
	pool        *buffer.Pool
	leafMax     int
	internalMax int

	rootID atomic.Int32
	initMu sync.Mutex
}

// NewBTree creates an empty tree. leafMax bounds the entries per leaf;
// internalMax bounds the children per internal node.
func NewBTree(pool *buffer.Pool, leafMax, internalMax int) *BTree {
	t := &BTree{pool: pool, leafMax: leafMax, internalMax: internalMax}
	t.rootID.Store(int32(primitives.InvalidPageID))
	return t
}

// RootID returns the current root page id (InvalidPageID when empty).
func (t *BTree) RootID() primitives.PageID {
	return primitives.PageID(t.rootID.Load())
}

// IsEmpty reports whether the tree has no root.
func (t *BTree) IsEmpty() bool { return t.RootID() == primitives.InvalidPageID }

// opContext carries one operation's held latches so that completion (or
// failure) releases every retained latch, unpins every frame and drops
// pages scheduled for deletion in a single sweep.
type opContext struct {
	op      op
	pages   []*page.Page
	deleted []primitives.PageID
}

func (c *opContext) add(p *page.Page) { c.pages = append(c.pages, p) }

// find returns the held page with the given id, or nil.
func (c *opContext) find(id primitives.PageID) *page.Page {
	for _, p := range c.pages {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// releaseAll unlatches and unpins every held page and drops deleted
// pages from the pool.
func (t *BTree) releaseAll(c *opContext) {
	for _, p := range c.pages {
		if c.op == opRead {
			p.RUnlatch()
			t.pool.UnpinPage(p.ID(), false)
		} else {
			p.WUnlatch()
			t.pool.UnpinPage(p.ID(), true)
		}
	}
	c.pages = c.pages[:0]
	for _, id := range c.deleted {
		t.pool.DeletePage(id)
	}
	c.deleted = c.deleted[:0]
}

// releaseAncestors releases every held page above the most recent one.
// Called when the newly latched child is safe for the operation.
func (t *BTree) releaseAncestors(c *opContext) {
	if len(c.pages) <= 1 {
		return
	}
	for _, p := range c.pages[:len(c.pages)-1] {
		if c.op == opRead {
			p.RUnlatch()
			t.pool.UnpinPage(p.ID(), false)
		} else {
			p.WUnlatch()
			t.pool.UnpinPage(p.ID(), true)
		}
	}
	last := c.pages[len(c.pages)-1]
	c.pages = c.pages[:0]
	c.pages = append(c.pages, last)
}

// isSafe reports whether node cannot propagate a structural change up:
// an insert will not overflow it, a delete will not underflow it.
func (t *BTree) isSafe(n page.BTreeNode, kind op) bool {
	if kind == opInsert {
		if n.IsLeaf() {
			return n.Size() < n.MaxSize()-1
		}
		return n.Size() < n.MaxSize()
	}
	if n.IsRoot() {
		if n.IsLeaf() {
			return true
		}
		return n.Size() > 2
	}
	return n.Size() > n.MinSize()
}

// latchFor takes p's content latch in the mode the operation needs.
func latchFor(p *page.Page, kind op) {
	if kind == opRead {
		p.RLatch()
	} else {
		p.WLatch()
	}
}

func unlatchFor(p *page.Page, kind op) {
	if kind == opRead {
		p.RUnlatch()
	} else {
		p.WUnlatch()
	}
}

// latchRoot pins and latches the current root. The root id can move
// between reading it and latching the page, so the id is re-verified
// after the latch and the acquisition retried on a mismatch.
func (t *BTree) latchRoot(c *opContext) (*page.Page, error) {
	for {
		rootID := t.RootID()
		if rootID == primitives.InvalidPageID {
			return nil, nil
		}
		p, err := t.pool.FetchPage(rootID)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, ErrPoolExhausted
		}
		latchFor(p, c.op)
		if t.RootID() == p.ID() {
			c.add(p)
			return p, nil
		}
		unlatchFor(p, c.op)
		t.pool.UnpinPage(p.ID(), false)
	}
}

// findLeaf descends to the leaf owning key under latch crabbing. On the
// read path the parent latch drops as soon as the child is latched; on
// write paths ancestors are retained until the child proves safe.
func (t *BTree) findLeaf(key int64, c *opContext) (*page.Page, error) {
	cur, err := t.latchRoot(c)
	if err != nil || cur == nil {
		return nil, err
	}
	for {
		node := page.AsBTreeNode(cur)
		if node.IsLeaf() {
			return cur, nil
		}
		childID := page.AsInternal(cur).Lookup(key)
		child, err := t.pool.FetchPage(childID)
		if err != nil {
			t.releaseAll(c)
			return nil, err
		}
		if child == nil {
			t.releaseAll(c)
			return nil, ErrPoolExhausted
		}
		latchFor(child, c.op)
		c.add(child)
		if c.op == opRead || t.isSafe(page.AsBTreeNode(child), c.op) {
			t.releaseAncestors(c)
		}
		cur = child
	}
}

// GetValue returns the record id bound to key.
func (t *BTree) GetValue(key int64) (primitives.RID, bool, error) {
	c := &opContext{op: opRead}
	leafPage, err := t.findLeaf(key, c)
	if err != nil {
		return primitives.RID{}, false, err
	}
	if leafPage == nil {
		return primitives.RID{}, false, nil
	}
	rid, ok := page.AsLeaf(leafPage).Lookup(key)
	t.releaseAll(c)
	return rid, ok, nil
}
