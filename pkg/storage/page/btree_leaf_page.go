package page

import (
	"encoding/binary"

	"relstore/pkg/primitives"
)

// Leaf layout after the common header:
//
//	offset 28  next page id  int32
//	offset 32  pairs         size × (key int64, rid page int32, rid slot uint16, pad uint16)
const (
	offNextPage   = nodeHeaderSize
	leafPairsOff  = nodeHeaderSize + 4
	leafPairSize  = 16
	LeafCapacity  = (PageSize - leafPairsOff) / leafPairSize
)

// LeafPage is a view over a page holding a leaf node. Keys are sorted
// strictly ascending; sibling leaves are linked left to right.
type LeafPage struct {
	BTreeNode
}

// InitLeaf formats p as an empty leaf with the given identity.
func InitLeaf(p *Page, id, parent primitives.PageID, maxSize int) LeafPage {
	initNodeHeader(p, LeafNode, id, parent, maxSize)
	leaf := LeafPage{AsBTreeNode(p)}
	leaf.SetNext(primitives.InvalidPageID)
	return leaf
}

// AsLeaf interprets p as a leaf node.
func AsLeaf(p *Page) LeafPage { return LeafPage{AsBTreeNode(p)} }

func (l LeafPage) Next() primitives.PageID {
	return primitives.PageID(int32(binary.LittleEndian.Uint32(l.raw()[offNextPage:])))
}

func (l LeafPage) SetNext(id primitives.PageID) {
	binary.LittleEndian.PutUint32(l.raw()[offNextPage:], uint32(int32(id)))
}

func (l LeafPage) KeyAt(i int) int64 {
	off := leafPairsOff + i*leafPairSize
	return int64(binary.LittleEndian.Uint64(l.raw()[off:]))
}

func (l LeafPage) setKeyAt(i int, key int64) {
	off := leafPairsOff + i*leafPairSize
	binary.LittleEndian.PutUint64(l.raw()[off:], uint64(key))
}

func (l LeafPage) RIDAt(i int) primitives.RID {
	off := leafPairsOff + i*leafPairSize + 8
	return primitives.RID{
		Page: primitives.PageID(int32(binary.LittleEndian.Uint32(l.raw()[off:]))),
		Slot: primitives.SlotID(binary.LittleEndian.Uint16(l.raw()[off+4:])),
	}
}

func (l LeafPage) setRIDAt(i int, rid primitives.RID) {
	off := leafPairsOff + i*leafPairSize + 8
	binary.LittleEndian.PutUint32(l.raw()[off:], uint32(int32(rid.Page)))
	binary.LittleEndian.PutUint16(l.raw()[off+4:], uint16(rid.Slot))
	binary.LittleEndian.PutUint16(l.raw()[off+6:], 0)
}

// KeyIndex returns the position of the first key ≥ key (binary search).
func (l LeafPage) KeyIndex(key int64) int {
	lo, hi := 0, l.Size()
	for lo < hi {
		mid := (lo + hi) / 2
		if l.KeyAt(mid) < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Lookup finds key's rid.
func (l LeafPage) Lookup(key int64) (primitives.RID, bool) {
	i := l.KeyIndex(key)
	if i < l.Size() && l.KeyAt(i) == key {
		return l.RIDAt(i), true
	}
	return primitives.RID{}, false
}

// Insert places (key, rid) in sorted order. It reports false on a
// duplicate key, leaving the leaf unchanged.
func (l LeafPage) Insert(key int64, rid primitives.RID) bool {
	i := l.KeyIndex(key)
	size := l.Size()
	if i < size && l.KeyAt(i) == key {
		return false
	}
	for j := size; j > i; j-- {
		l.setKeyAt(j, l.KeyAt(j-1))
		l.setRIDAt(j, l.RIDAt(j-1))
	}
	l.setKeyAt(i, key)
	l.setRIDAt(i, rid)
	l.SetSize(size + 1)
	return true
}

// Delete removes key. It reports false when the key is absent.
func (l LeafPage) Delete(key int64) bool {
	i := l.KeyIndex(key)
	size := l.Size()
	if i >= size || l.KeyAt(i) != key {
		return false
	}
	for j := i; j < size-1; j++ {
		l.setKeyAt(j, l.KeyAt(j+1))
		l.setRIDAt(j, l.RIDAt(j+1))
	}
	l.SetSize(size - 1)
	return true
}

// InsertFirst prepends an entry; the caller guarantees ordering.
func (l LeafPage) InsertFirst(key int64, rid primitives.RID) {
	size := l.Size()
	for j := size; j > 0; j-- {
		l.setKeyAt(j, l.KeyAt(j-1))
		l.setRIDAt(j, l.RIDAt(j-1))
	}
	l.setKeyAt(0, key)
	l.setRIDAt(0, rid)
	l.SetSize(size + 1)
}

// InsertLast appends an entry; the caller guarantees ordering.
func (l LeafPage) InsertLast(key int64, rid primitives.RID) {
	size := l.Size()
	l.setKeyAt(size, key)
	l.setRIDAt(size, rid)
	l.SetSize(size + 1)
}

// MoveHalfTo moves the upper half of l's entries into the fresh right
// sibling and links it into the leaf chain. l keeps ⌈size/2⌉ entries.
func (l LeafPage) MoveHalfTo(right LeafPage) {
	size := l.Size()
	mid := (size + 1) / 2
	for i := mid; i < size; i++ {
		right.setKeyAt(i-mid, l.KeyAt(i))
		right.setRIDAt(i-mid, l.RIDAt(i))
	}
	right.SetSize(size - mid)
	l.SetSize(mid)
	right.SetNext(l.Next())
	l.SetNext(right.ID())
}

// MergeFrom appends every entry of right into l and takes over right's
// next pointer, unlinking right from the leaf chain. The caller disposes
// of right.
func (l LeafPage) MergeFrom(right LeafPage) {
	size := l.Size()
	for i := 0; i < right.Size(); i++ {
		l.setKeyAt(size+i, right.KeyAt(i))
		l.setRIDAt(size+i, right.RIDAt(i))
	}
	l.SetSize(size + right.Size())
	l.SetNext(right.Next())
}
