package page

import (
	"encoding/binary"

	"relstore/pkg/primitives"
)

// Internal layout after the common header: size × (key int64, child
// int32) pairs of 12 bytes. Size counts children; the slot 0 key is a
// sentinel and never read. One extra pair of room beyond max size lets a
// node overflow in place before it splits.
const (
	internalPairsOff = nodeHeaderSize
	internalPairSize = 12
	InternalCapacity = (PageSize-internalPairsOff)/internalPairSize - 1
)

// InternalPage is a view over a page holding an internal node.
type InternalPage struct {
	BTreeNode
}

// InitInternal formats p as an empty internal node.
func InitInternal(p *Page, id, parent primitives.PageID, maxSize int) InternalPage {
	initNodeHeader(p, InternalNode, id, parent, maxSize)
	return InternalPage{AsBTreeNode(p)}
}

// AsInternal interprets p as an internal node.
func AsInternal(p *Page) InternalPage { return InternalPage{AsBTreeNode(p)} }

func (n InternalPage) KeyAt(i int) int64 {
	off := internalPairsOff + i*internalPairSize
	return int64(binary.LittleEndian.Uint64(n.raw()[off:]))
}

func (n InternalPage) SetKeyAt(i int, key int64) {
	off := internalPairsOff + i*internalPairSize
	binary.LittleEndian.PutUint64(n.raw()[off:], uint64(key))
}

func (n InternalPage) ChildAt(i int) primitives.PageID {
	off := internalPairsOff + i*internalPairSize + 8
	return primitives.PageID(int32(binary.LittleEndian.Uint32(n.raw()[off:])))
}

func (n InternalPage) SetChildAt(i int, id primitives.PageID) {
	off := internalPairsOff + i*internalPairSize + 8
	binary.LittleEndian.PutUint32(n.raw()[off:], uint32(int32(id)))
}

// Lookup returns the child to descend into for key: the child left of
// the first separator greater than key.
func (n InternalPage) Lookup(key int64) primitives.PageID {
	lo, hi := 1, n.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if n.KeyAt(mid) <= key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return n.ChildAt(lo - 1)
}

// KeyIndex returns the slot of key among the separators, or -1.
func (n InternalPage) KeyIndex(key int64) int {
	for i := 1; i < n.Size(); i++ {
		if n.KeyAt(i) == key {
			return i
		}
	}
	return -1
}

// ChildIndex returns the slot holding child, or -1.
func (n InternalPage) ChildIndex(child primitives.PageID) int {
	for i := 0; i < n.Size(); i++ {
		if n.ChildAt(i) == child {
			return i
		}
	}
	return -1
}

// Insert places (key, child) in separator order, the child to the right
// of the key.
func (n InternalPage) Insert(key int64, child primitives.PageID) {
	size := n.Size()
	i := 1
	for i < size && n.KeyAt(i) < key {
		i++
	}
	for j := size; j > i; j-- {
		n.SetKeyAt(j, n.KeyAt(j-1))
		n.SetChildAt(j, n.ChildAt(j-1))
	}
	n.SetKeyAt(i, key)
	n.SetChildAt(i, child)
	n.SetSize(size + 1)
}

// InsertFirst makes child the new leftmost child; the previous leftmost
// child's slot gains key as its separator.
func (n InternalPage) InsertFirst(key int64, child primitives.PageID) {
	size := n.Size()
	for j := size; j > 0; j-- {
		n.SetKeyAt(j, n.KeyAt(j-1))
		n.SetChildAt(j, n.ChildAt(j-1))
	}
	n.SetKeyAt(1, key)
	n.SetChildAt(0, child)
	n.SetSize(size + 1)
}

// Delete removes separator key and the child to its right. It reports
// false when the key is absent.
func (n InternalPage) Delete(key int64) bool {
	i := n.KeyIndex(key)
	if i < 0 {
		return false
	}
	size := n.Size()
	for j := i; j < size-1; j++ {
		n.SetKeyAt(j, n.KeyAt(j+1))
		n.SetChildAt(j, n.ChildAt(j+1))
	}
	n.SetSize(size - 1)
	return true
}

// DeleteFirst drops the leftmost child; the old slot 1 child becomes the
// sentinel slot.
func (n InternalPage) DeleteFirst() {
	size := n.Size()
	for j := 0; j < size-1; j++ {
		n.SetKeyAt(j, n.KeyAt(j+1))
		n.SetChildAt(j, n.ChildAt(j+1))
	}
	n.SetSize(size - 1)
}

// MoveHalfTo splits n: the upper half of the children moves to the fresh
// right sibling and the separator between the halves is returned for the
// parent. n keeps ⌈size/2⌉ children.
func (n InternalPage) MoveHalfTo(right InternalPage) int64 {
	size := n.Size()
	keep := (size + 1) / 2
	pushUp := n.KeyAt(keep)
	for i := keep; i < size; i++ {
		right.SetKeyAt(i-keep, n.KeyAt(i))
		right.SetChildAt(i-keep, n.ChildAt(i))
	}
	right.SetSize(size - keep)
	n.SetSize(keep)
	return pushUp
}

// MergeFrom appends right's children into n, the parent separator sepKey
// becoming the key over right's first child.
func (n InternalPage) MergeFrom(sepKey int64, right InternalPage) {
	size := n.Size()
	n.SetKeyAt(size, sepKey)
	n.SetChildAt(size, right.ChildAt(0))
	for i := 1; i < right.Size(); i++ {
		n.SetKeyAt(size+i, right.KeyAt(i))
		n.SetChildAt(size+i, right.ChildAt(i))
	}
	n.SetSize(size + right.Size())
}
