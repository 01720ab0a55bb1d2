package page

import (
	"encoding/binary"

	"relstore/pkg/primitives"
)

// NodeType discriminates the two B+tree node kinds.
type NodeType uint32

const (
	LeafNode NodeType = iota + 1
	InternalNode
)

// Every B+tree node page begins with a common header:
//
//	offset  0  node type    uint32
//	offset  4  size         int32
//	offset  8  max size     int32
//	offset 12  page id      int32
//	offset 16  parent page  int32
//	offset 20  lsn          uint64
//
// Leaf pages follow with a next-page id (int32) and size sorted
// (key, rid) pairs. Internal pages follow with size (key, child) pairs
// where the slot 0 key is unused.
const (
	offType   = 0
	offSize   = 4
	offMax    = 8
	offPageID = 12
	offParent = 16
	offLSN    = 20

	nodeHeaderSize = 28
)

// BTreeNode is a view over a latched, pinned page holding a B+tree node.
type BTreeNode struct {
	page *Page
}

// AsBTreeNode interprets p's data as a node. The caller must hold p's
// content latch.
func AsBTreeNode(p *Page) BTreeNode { return BTreeNode{page: p} }

func (n BTreeNode) Page() *Page { return n.page }

func (n BTreeNode) raw() []byte { return n.page.Data() }

func (n BTreeNode) Type() NodeType {
	return NodeType(binary.LittleEndian.Uint32(n.raw()[offType:]))
}

func (n BTreeNode) IsLeaf() bool { return n.Type() == LeafNode }

func (n BTreeNode) Size() int {
	return int(int32(binary.LittleEndian.Uint32(n.raw()[offSize:])))
}

func (n BTreeNode) SetSize(size int) {
	binary.LittleEndian.PutUint32(n.raw()[offSize:], uint32(int32(size)))
}

func (n BTreeNode) MaxSize() int {
	return int(int32(binary.LittleEndian.Uint32(n.raw()[offMax:])))
}

func (n BTreeNode) ID() primitives.PageID {
	return primitives.PageID(int32(binary.LittleEndian.Uint32(n.raw()[offPageID:])))
}

func (n BTreeNode) Parent() primitives.PageID {
	return primitives.PageID(int32(binary.LittleEndian.Uint32(n.raw()[offParent:])))
}

func (n BTreeNode) SetParent(id primitives.PageID) {
	binary.LittleEndian.PutUint32(n.raw()[offParent:], uint32(int32(id)))
}

// IsRoot reports whether the node has no parent.
func (n BTreeNode) IsRoot() bool { return n.Parent() == primitives.InvalidPageID }

// MinSize is the underflow threshold: ⌈max size / 2⌉ entries for a
// leaf, the same count of children for an internal node. A leaf root may
// hold a single entry; an internal root needs two children.
func (n BTreeNode) MinSize() int {
	if n.IsRoot() {
		if n.IsLeaf() {
			return 1
		}
		return 2
	}
	return (n.MaxSize() + 1) / 2
}

func initNodeHeader(p *Page, t NodeType, id, parent primitives.PageID, maxSize int) {
	data := p.Data()
	binary.LittleEndian.PutUint32(data[offType:], uint32(t))
	binary.LittleEndian.PutUint32(data[offSize:], 0)
	binary.LittleEndian.PutUint32(data[offMax:], uint32(int32(maxSize)))
	binary.LittleEndian.PutUint32(data[offPageID:], uint32(int32(id)))
	binary.LittleEndian.PutUint32(data[offParent:], uint32(int32(parent)))
	binary.LittleEndian.PutUint64(data[offLSN:], 0)
}
