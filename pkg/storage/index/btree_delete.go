package index

import (
	"fmt"

	"relstore/pkg/primitives"
	"relstore/pkg/storage/page"
)

func errMissingAncestor(id primitives.PageID) error {
	return fmt.Errorf("ancestor %v not held during structural change", id)
}

// Remove deletes key. Deleting a missing key is a no-op; the report is
// false in that case.
func (t *BTree) Remove(key int64) (bool, error) {
	c := &opContext{op: opDelete}

	leafPage, err := t.findLeaf(key, c)
	if err != nil {
		return false, err
	}
	if leafPage == nil {
		return false, nil
	}
	if !page.AsLeaf(leafPage).Delete(key) {
		t.releaseAll(c)
		return false, nil
	}
	err = t.rebalance(c, page.AsBTreeNode(leafPage))
	t.releaseAll(c)
	return err == nil, err
}

// rebalance restores the fill invariant for node after one entry was
// removed from it, merging or redistributing with a sibling and
// recursing into the parent when a separator disappears.
func (t *BTree) rebalance(c *opContext, node page.BTreeNode) error {
	if node.ID() == t.RootID() {
		return t.shrinkRoot(c, node)
	}
	if node.Size() >= node.MinSize() {
		return nil
	}

	parentPage := c.find(node.Parent())
	if parentPage == nil {
		return errMissingAncestor(node.Parent())
	}
	parent := page.AsInternal(parentPage)
	idx := parent.ChildIndex(node.ID())
	if idx < 0 {
		return fmt.Errorf("node %v not found under parent %v", node.ID(), parent.ID())
	}

	// Prefer merging, left sibling first; redistribute only when neither
	// neighbour can absorb this node.
	if idx > 0 {
		sibPage, sib, err := t.fetchNode(parent.ChildAt(idx - 1))
		if err != nil {
			return err
		}
		sep := parent.KeyAt(idx)
		if t.mergeable(node, sib) {
			return t.merge(c, parent, sib, node, sep, sibPage, nil)
		}
		if idx < parent.Size()-1 {
			rightPage, right, err := t.fetchNode(parent.ChildAt(idx + 1))
			if err != nil {
				t.pool.UnpinPage(sibPage.ID(), false)
				return err
			}
			if t.mergeable(node, right) {
				t.pool.UnpinPage(sibPage.ID(), false)
				return t.merge(c, parent, node, right, parent.KeyAt(idx+1), nil, rightPage)
			}
			t.pool.UnpinPage(rightPage.ID(), false)
		}
		return t.borrowFromLeft(parent, sib, node, sep, idx, sibPage)
	}

	sibPage, sib, err := t.fetchNode(parent.ChildAt(idx + 1))
	if err != nil {
		return err
	}
	sep := parent.KeyAt(idx + 1)
	if t.mergeable(node, sib) {
		return t.merge(c, parent, node, sib, sep, nil, sibPage)
	}
	return t.borrowFromRight(parent, node, sib, sep, idx, sibPage)
}

// shrinkRoot handles the two root-specific underflows: an emptied leaf
// root ends the tree, an internal root left with one child hands the
// root to that child.
func (t *BTree) shrinkRoot(c *opContext, root page.BTreeNode) error {
	if root.IsLeaf() && root.Size() == 0 {
		t.rootID.Store(int32(primitives.InvalidPageID))
		c.deleted = append(c.deleted, root.ID())
		return nil
	}
	if !root.IsLeaf() && root.Size() == 1 {
		childID := page.AsInternal(root.Page()).ChildAt(0)
		childPage, child, err := t.fetchNode(childID)
		if err != nil {
			return err
		}
		child.SetParent(primitives.InvalidPageID)
		t.pool.UnpinPage(childPage.ID(), true)
		t.rootID.Store(int32(childID))
		c.deleted = append(c.deleted, root.ID())
	}
	return nil
}

func (t *BTree) fetchNode(id primitives.PageID) (*page.Page, page.BTreeNode, error) {
	p, err := t.pool.FetchPage(id)
	if err != nil {
		return nil, page.BTreeNode{}, err
	}
	if p == nil {
		return nil, page.BTreeNode{}, ErrPoolExhausted
	}
	return p, page.AsBTreeNode(p), nil
}

// mergeable reports whether two siblings fit in one node. A merged leaf
// must stay under the split threshold; a merged internal node may fill
// every child slot.
func (t *BTree) mergeable(a, b page.BTreeNode) bool {
	if a.IsLeaf() {
		return a.Size()+b.Size() <= a.MaxSize()-1
	}
	return a.Size()+b.Size() <= a.MaxSize()
}

// merge folds right into left, drops the separating key from the parent
// and recurses. Exactly one of leftPinned/rightPinned names the sibling
// page this call fetched (the other node lives in c); the merged-away
// right page is always scheduled for deletion.
func (t *BTree) merge(c *opContext, parent page.InternalPage, left, right page.BTreeNode, sep int64, leftPinned, rightPinned *page.Page) error {
	if left.IsLeaf() {
		page.AsLeaf(left.Page()).MergeFrom(page.AsLeaf(right.Page()))
	} else {
		page.AsInternal(left.Page()).MergeFrom(sep, page.AsInternal(right.Page()))
		if err := t.reparentChildren(page.AsInternal(left.Page())); err != nil {
			return err
		}
	}

	if leftPinned != nil {
		t.pool.UnpinPage(leftPinned.ID(), true)
	}
	if rightPinned != nil {
		t.pool.UnpinPage(rightPinned.ID(), true)
	}
	c.deleted = append(c.deleted, right.ID())

	parent.Delete(sep)
	return t.rebalance(c, parent.BTreeNode)
}

// borrowFromLeft moves the left sibling's last entry into node through
// the parent separator.
func (t *BTree) borrowFromLeft(parent page.InternalPage, sib, node page.BTreeNode, sep int64, idx int, sibPage *page.Page) error {
	if node.IsLeaf() {
		left := page.AsLeaf(sib.Page())
		cur := page.AsLeaf(node.Page())
		last := left.Size() - 1
		key, rid := left.KeyAt(last), left.RIDAt(last)
		left.Delete(key)
		cur.InsertFirst(key, rid)
		parent.SetKeyAt(idx, key)
	} else {
		left := page.AsInternal(sib.Page())
		cur := page.AsInternal(node.Page())
		last := left.Size() - 1
		key, child := left.KeyAt(last), left.ChildAt(last)
		left.SetSize(last)
		cur.InsertFirst(sep, child)
		parent.SetKeyAt(idx, key)
		if err := t.reparentOne(child, cur.ID()); err != nil {
			t.pool.UnpinPage(sibPage.ID(), true)
			return err
		}
	}
	t.pool.UnpinPage(sibPage.ID(), true)
	return nil
}

// borrowFromRight moves the right sibling's first entry into node
// through the parent separator.
func (t *BTree) borrowFromRight(parent page.InternalPage, node, sib page.BTreeNode, sep int64, idx int, sibPage *page.Page) error {
	if node.IsLeaf() {
		cur := page.AsLeaf(node.Page())
		right := page.AsLeaf(sib.Page())
		key, rid := right.KeyAt(0), right.RIDAt(0)
		right.Delete(key)
		cur.InsertLast(key, rid)
		parent.SetKeyAt(idx+1, right.KeyAt(0))
	} else {
		cur := page.AsInternal(node.Page())
		right := page.AsInternal(sib.Page())
		newSep := right.KeyAt(1)
		child := right.ChildAt(0)
		right.DeleteFirst()
		cur.Insert(sep, child)
		parent.SetKeyAt(idx+1, newSep)
		if err := t.reparentOne(child, cur.ID()); err != nil {
			t.pool.UnpinPage(sibPage.ID(), true)
			return err
		}
	}
	t.pool.UnpinPage(sibPage.ID(), true)
	return nil
}

func (t *BTree) reparentOne(child, parent primitives.PageID) error {
	p, n, err := t.fetchNode(child)
	if err != nil {
		return err
	}
	n.SetParent(parent)
	t.pool.UnpinPage(p.ID(), true)
	return nil
}
