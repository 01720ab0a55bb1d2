package index

import (
	"relstore/pkg/primitives"
	"relstore/pkg/storage/page"
)

// Iterator walks the leaf chain left to right. It keeps a shared latch
// and a pin on the current leaf; advancing past a leaf's end acquires
// the next leaf before letting go of the current one (hand over hand).
type Iterator struct {
	tree *BTree
	page *page.Page
	leaf page.LeafPage
	idx  int
	done bool
}

// Begin positions an iterator on the smallest key.
func (t *BTree) Begin() (*Iterator, error) {
	return t.descendLeftmost()
}

// BeginAt positions an iterator on the first key ≥ key.
func (t *BTree) BeginAt(key int64) (*Iterator, error) {
	c := &opContext{op: opRead}
	leafPage, err := t.findLeaf(key, c)
	if err != nil {
		return nil, err
	}
	if leafPage == nil {
		return &Iterator{tree: t, done: true}, nil
	}
	// The descent's read path leaves exactly the leaf latched; the
	// iterator takes that latch and pin over.
	it := &Iterator{tree: t, page: leafPage, leaf: page.AsLeaf(leafPage)}
	it.idx = it.leaf.KeyIndex(key)
	if it.idx >= it.leaf.Size() {
		it.advanceLeaf()
	}
	return it, nil
}

// descendLeftmost follows child 0 pointers to the first leaf.
func (t *BTree) descendLeftmost() (*Iterator, error) {
	c := &opContext{op: opRead}
	cur, err := t.latchRoot(c)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return &Iterator{tree: t, done: true}, nil
	}
	for !page.AsBTreeNode(cur).IsLeaf() {
		childID := page.AsInternal(cur).ChildAt(0)
		child, err := t.pool.FetchPage(childID)
		if err != nil {
			t.releaseAll(c)
			return nil, err
		}
		if child == nil {
			t.releaseAll(c)
			return nil, ErrPoolExhausted
		}
		child.RLatch()
		c.add(child)
		t.releaseAncestors(c)
		cur = child
	}
	it := &Iterator{tree: t, page: cur, leaf: page.AsLeaf(cur)}
	if it.leaf.Size() == 0 {
		it.advanceLeaf()
	}
	return it, nil
}

// Valid reports whether the iterator points at an entry.
func (it *Iterator) Valid() bool { return !it.done }

// Key returns the current key. Only valid while Valid.
func (it *Iterator) Key() int64 { return it.leaf.KeyAt(it.idx) }

// RID returns the current record id. Only valid while Valid.
func (it *Iterator) RID() primitives.RID { return it.leaf.RIDAt(it.idx) }

// Next advances one entry, crossing into the next leaf when the current
// one is exhausted.
func (it *Iterator) Next() {
	if it.done {
		return
	}
	it.idx++
	if it.idx >= it.leaf.Size() {
		it.advanceLeaf()
	}
}

// advanceLeaf moves to the next leaf in the chain, latching it before
// the current leaf's latch drops.
func (it *Iterator) advanceLeaf() {
	for {
		nextID := it.leaf.Next()
		if nextID == primitives.InvalidPageID {
			it.release()
			it.done = true
			return
		}
		next, err := it.tree.pool.FetchPage(nextID)
		if err != nil || next == nil {
			it.release()
			it.done = true
			return
		}
		next.RLatch()
		it.release()
		it.page = next
		it.leaf = page.AsLeaf(next)
		it.idx = 0
		if it.leaf.Size() > 0 {
			return
		}
	}
}

// Close releases the iterator's latch and pin. Safe to call twice.
func (it *Iterator) Close() {
	if !it.done {
		it.release()
		it.done = true
	}
}

func (it *Iterator) release() {
	if it.page != nil {
		it.page.RUnlatch()
		it.tree.pool.UnpinPage(it.page.ID(), false)
		it.page = nil
	}
}
