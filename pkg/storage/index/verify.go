package index

import (
	"fmt"
	"math"
	"strings"

	"relstore/pkg/primitives"
	"relstore/pkg/storage/page"
)

// Verify walks the whole tree and checks the structural invariants:
// strictly increasing keys within and across leaves, uniform leaf depth,
// separator bounds, and parent pointers. Intended for tests and the
// inspector; it takes no latches and must not race writers.
func (t *BTree) Verify() error {
	rootID := t.RootID()
	if rootID == primitives.InvalidPageID {
		return nil
	}
	leafDepth := -1
	if err := t.verifyNode(rootID, primitives.InvalidPageID, math.MinInt64, math.MaxInt64, 0, &leafDepth); err != nil {
		return err
	}
	return t.verifyLeafChain()
}

func (t *BTree) verifyNode(id, wantParent primitives.PageID, lower, upper int64, depth int, leafDepth *int) error {
	p, node, err := t.fetchNode(id)
	if err != nil {
		return err
	}
	defer t.pool.UnpinPage(id, false)

	if node.Parent() != wantParent {
		return fmt.Errorf("node %v: parent %v, want %v", id, node.Parent(), wantParent)
	}

	if node.IsLeaf() {
		if *leafDepth == -1 {
			*leafDepth = depth
		} else if *leafDepth != depth {
			return fmt.Errorf("leaf %v at depth %d, want %d", id, depth, *leafDepth)
		}
		leaf := page.AsLeaf(p)
		prev := lower
		for i := 0; i < leaf.Size(); i++ {
			k := leaf.KeyAt(i)
			if i > 0 && k <= prev {
				return fmt.Errorf("leaf %v: keys not strictly increasing at slot %d", id, i)
			}
			if k < lower || k >= upper {
				return fmt.Errorf("leaf %v: key %d outside [%d, %d)", id, k, lower, upper)
			}
			prev = k
		}
		return nil
	}

	n := page.AsInternal(p)
	for i := 1; i < n.Size(); i++ {
		if n.KeyAt(i) <= n.KeyAt(i-1) && i > 1 {
			return fmt.Errorf("internal %v: separators not increasing at slot %d", id, i)
		}
	}
	for i := 0; i < n.Size(); i++ {
		lo, hi := lower, upper
		if i > 0 {
			lo = n.KeyAt(i)
		}
		if i < n.Size()-1 {
			hi = n.KeyAt(i + 1)
		}
		if err := t.verifyNode(n.ChildAt(i), id, lo, hi, depth+1, leafDepth); err != nil {
			return err
		}
	}
	return nil
}

func (t *BTree) verifyLeafChain() error {
	it, err := t.Begin()
	if err != nil {
		return err
	}
	defer it.Close()
	first := true
	var prev int64
	for ; it.Valid(); it.Next() {
		k := it.Key()
		if !first && k <= prev {
			return fmt.Errorf("leaf chain: key %d after %d", k, prev)
		}
		prev, first = k, false
	}
	return nil
}

// Dump renders the tree level by level for debugging and the inspector.
func (t *BTree) Dump() string {
	rootID := t.RootID()
	if rootID == primitives.InvalidPageID {
		return "(empty tree)"
	}
	var b strings.Builder
	level := []primitives.PageID{rootID}
	for len(level) > 0 {
		var next []primitives.PageID
		for _, id := range level {
			p, node, err := t.fetchNode(id)
			if err != nil {
				fmt.Fprintf(&b, "<%v: %v>", id, err)
				continue
			}
			if node.IsLeaf() {
				leaf := page.AsLeaf(p)
				keys := make([]string, 0, leaf.Size())
				for i := 0; i < leaf.Size(); i++ {
					keys = append(keys, fmt.Sprintf("%d", leaf.KeyAt(i)))
				}
				fmt.Fprintf(&b, "[%s] ", strings.Join(keys, " "))
			} else {
				n := page.AsInternal(p)
				keys := make([]string, 0, n.Size()-1)
				for i := 1; i < n.Size(); i++ {
					keys = append(keys, fmt.Sprintf("%d", n.KeyAt(i)))
				}
				fmt.Fprintf(&b, "{%s} ", strings.Join(keys, " "))
				for i := 0; i < n.Size(); i++ {
					next = append(next, n.ChildAt(i))
				}
			}
			t.pool.UnpinPage(id, false)
		}
		b.WriteString("\n")
		level = next
	}
	return b.String()
}
