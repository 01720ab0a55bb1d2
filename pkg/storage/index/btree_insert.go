package index

import (
	"relstore/pkg/primitives"
	"relstore/pkg/storage/page"
)

// Insert binds key to rid. It reports false without mutation when the
// key already exists.
func (t *BTree) Insert(key int64, rid primitives.RID) (bool, error) {
	c := &opContext{op: opInsert}

	leafPage, err := t.findLeaf(key, c)
	if err != nil {
		return false, err
	}
	for leafPage == nil {
		// Empty tree: take the tree mutex and re-check, another writer
		// may have planted the root between the descent and here.
		if err := t.startNewTree(); err != nil {
			return false, err
		}
		leafPage, err = t.findLeaf(key, c)
		if err != nil {
			return false, err
		}
	}

	leaf := page.AsLeaf(leafPage)
	if !leaf.Insert(key, rid) {
		t.releaseAll(c)
		return false, nil
	}

	if leaf.Size() == leaf.MaxSize() {
		if err := t.splitLeaf(c, leaf); err != nil {
			t.releaseAll(c)
			return false, err
		}
	}
	t.releaseAll(c)
	return true, nil
}

// startNewTree creates the root leaf for an empty tree.
func (t *BTree) startNewTree() error {
	t.initMu.Lock()
	defer t.initMu.Unlock()
	if !t.IsEmpty() {
		return nil
	}
	p, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	if p == nil {
		return ErrPoolExhausted
	}
	page.InitLeaf(p, p.ID(), primitives.InvalidPageID, t.leafMax)
	t.rootID.Store(int32(p.ID()))
	t.pool.UnpinPage(p.ID(), true)
	return nil
}

// splitLeaf halves the overflowing leaf into a fresh right sibling and
// pushes the sibling's smallest key into the parent.
func (t *BTree) splitLeaf(c *opContext, leaf page.LeafPage) error {
	rightPage, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	if rightPage == nil {
		return ErrPoolExhausted
	}
	right := page.InitLeaf(rightPage, rightPage.ID(), leaf.Parent(), t.leafMax)
	leaf.MoveHalfTo(right)

	err = t.insertInParent(c, leaf.BTreeNode, right.KeyAt(0), right.BTreeNode)
	t.pool.UnpinPage(rightPage.ID(), true)
	return err
}

// insertInParent wires a freshly split-off right sibling into the
// parent, splitting upward as long as parents overflow. The parent
// chain is already write-latched in c (the descent retained every
// unsafe ancestor).
func (t *BTree) insertInParent(c *opContext, left page.BTreeNode, key int64, right page.BTreeNode) error {
	if left.IsRoot() {
		rootPage, err := t.pool.NewPage()
		if err != nil {
			return err
		}
		if rootPage == nil {
			return ErrPoolExhausted
		}
		root := page.InitInternal(rootPage, rootPage.ID(), primitives.InvalidPageID, t.internalMax)
		root.SetChildAt(0, left.ID())
		root.SetKeyAt(1, key)
		root.SetChildAt(1, right.ID())
		root.SetSize(2)
		left.SetParent(root.ID())
		right.SetParent(root.ID())
		t.rootID.Store(int32(root.ID()))
		t.pool.UnpinPage(rootPage.ID(), true)
		return nil
	}

	parentPage := c.find(left.Parent())
	if parentPage == nil {
		// The descent guarantees unsafe ancestors stay held; a missing
		// parent is an invariant breach.
		return errMissingAncestor(left.Parent())
	}
	parent := page.AsInternal(parentPage)
	parent.Insert(key, right.ID())
	right.SetParent(parent.ID())

	if parent.Size() <= parent.MaxSize() {
		return nil
	}

	sibPage, err := t.pool.NewPage()
	if err != nil {
		return err
	}
	if sibPage == nil {
		return ErrPoolExhausted
	}
	sib := page.InitInternal(sibPage, sibPage.ID(), parent.Parent(), t.internalMax)
	pushUp := parent.MoveHalfTo(sib)
	if err := t.reparentChildren(sib); err != nil {
		t.pool.UnpinPage(sibPage.ID(), true)
		return err
	}

	err = t.insertInParent(c, parent.BTreeNode, pushUp, sib.BTreeNode)
	t.pool.UnpinPage(sibPage.ID(), true)
	return err
}

// reparentChildren points every child of n at n. Children are pinned
// briefly; their parent field is only read under the parent's latch,
// which this writer holds.
func (t *BTree) reparentChildren(n page.InternalPage) error {
	for i := 0; i < n.Size(); i++ {
		childPage, err := t.pool.FetchPage(n.ChildAt(i))
		if err != nil {
			return err
		}
		if childPage == nil {
			return ErrPoolExhausted
		}
		page.AsBTreeNode(childPage).SetParent(n.ID())
		t.pool.UnpinPage(childPage.ID(), true)
	}
	return nil
}
