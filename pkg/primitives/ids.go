package primitives

import "fmt"

// PageID identifies a page on disk. Page ids are dense non-negative
// integers handed out by the buffer pool's allocator.
type PageID int32

// FrameID identifies a slot in the buffer pool's frame array.
type FrameID int32

// TableID identifies a table in the catalog.
type TableID uint32

// IndexID identifies an index in the catalog.
type IndexID uint32

// SlotID identifies a tuple slot within a heap page.
type SlotID uint16

// Sentinel values for invalid/unset identifiers.
const (
	InvalidPageID  PageID  = -1
	InvalidFrameID FrameID = -1
	InvalidTableID TableID = 0
)

func (p PageID) String() string {
	if p == InvalidPageID {
		return "page(invalid)"
	}
	return fmt.Sprintf("page(%d)", int32(p))
}
