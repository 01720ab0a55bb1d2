// Package heap stores table rows in slotted pages reached through the
// buffer pool.
package heap

import (
	"relstore/pkg/storage/page"
	"relstore/pkg/tuple"
)

// HeapPage lays a table page out as a used-slot bitmap followed by
// fixed-width tuple slots. Slot count is derived from the schema's
// tuple width: each slot costs its width plus one bitmap bit.
//
// The view carries no state of its own; the caller holds the page's
// latch and pin for the duration of an operation.
type HeapPage struct {
	page   *page.Page
	schema *tuple.Schema
}

// AsHeapPage interprets p as a heap page under schema.
func AsHeapPage(p *page.Page, schema *tuple.Schema) HeapPage {
	return HeapPage{page: p, schema: schema}
}

// SlotCount returns how many tuples one page holds under schema.
func SlotCount(schema *tuple.Schema) int {
	return (page.PageSize * 8) / (schema.TupleWidth()*8 + 1)
}

func (h HeapPage) bitmapLen() int { return (SlotCount(h.schema) + 7) / 8 }

func (h HeapPage) slotOffset(slot int) int {
	return h.bitmapLen() + slot*h.schema.TupleWidth()
}

// SlotUsed reports whether slot holds a live tuple.
func (h HeapPage) SlotUsed(slot int) bool {
	return h.page.Data()[slot/8]&(1<<(slot%8)) != 0
}

func (h HeapPage) setSlotUsed(slot int, used bool) {
	if used {
		h.page.Data()[slot/8] |= 1 << (slot % 8)
	} else {
		h.page.Data()[slot/8] &^= 1 << (slot % 8)
	}
}

// Insert stores t in the first free slot, returning the slot index. ok
// is false when the page is full.
func (h HeapPage) Insert(t *tuple.Tuple) (int, bool, error) {
	for slot := 0; slot < SlotCount(h.schema); slot++ {
		if h.SlotUsed(slot) {
			continue
		}
		if err := t.Serialize(h.schema, h.page.Data()[h.slotOffset(slot):]); err != nil {
			return 0, false, err
		}
		h.setSlotUsed(slot, true)
		return slot, true, nil
	}
	return 0, false, nil
}

// Delete frees slot. Deleting a free slot reports false.
func (h HeapPage) Delete(slot int) bool {
	if slot < 0 || slot >= SlotCount(h.schema) || !h.SlotUsed(slot) {
		return false
	}
	h.setSlotUsed(slot, false)
	return true
}

// Get reads the tuple in slot.
func (h HeapPage) Get(slot int) (*tuple.Tuple, bool, error) {
	if slot < 0 || slot >= SlotCount(h.schema) || !h.SlotUsed(slot) {
		return nil, false, nil
	}
	t, err := tuple.Deserialize(h.schema, h.page.Data()[h.slotOffset(slot):])
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}
