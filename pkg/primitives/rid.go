package primitives

import "fmt"

// RID locates a tuple: the heap page that stores it plus the slot inside
// that page. RIDs are stable for the lifetime of the tuple and are the
// values stored in indexes.
type RID struct {
	Page PageID
	Slot SlotID
}

func NewRID(page PageID, slot SlotID) RID {
	return RID{Page: page, Slot: slot}
}

func (r RID) Equals(other RID) bool {
	return r.Page == other.Page && r.Slot == other.Slot
}

func (r RID) String() string {
	return fmt.Sprintf("rid(%d:%d)", int32(r.Page), uint16(r.Slot))
}
