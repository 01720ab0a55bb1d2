// Package buffer owns the frame cache between the executors' page
// requests and the disk pager: a fixed frame array, a page table mapping
// resident page ids to frames, and the LRU-K replacer that picks
// victims.
package buffer

import (
	"fmt"
	"sync"

	"relstore/pkg/container/hash"
	"relstore/pkg/primitives"
	"relstore/pkg/storage/disk"
	"relstore/pkg/storage/page"
)

// Config sizes a pool.
type Config struct {
	PoolSize   int // number of frames
	ReplacerK  int // LRU-K history depth
	BucketSize int // page table bucket capacity
}

// DefaultConfig returns the sizing used by the tests and the inspector.
func DefaultConfig() Config {
	return Config{PoolSize: 64, ReplacerK: 2, BucketSize: 4}
}

// Pool is the buffer pool manager. A single latch serialises the free
// list, the page table and the replacer; page content is protected by
// the per-page latch clients take after pinning.
type Pool struct {
	mu sync.Mutex

	frames    []*page.Page
	freeList  []primitives.FrameID
	pageTable *hash.ExtendibleTable[primitives.PageID, primitives.FrameID]
	replacer  *LRUKReplacer
	disk      disk.Manager

	nextPageID primitives.PageID
}

// NewPool creates a pool with cfg.PoolSize frames, all initially free.
func NewPool(cfg Config, dm disk.Manager) *Pool {
	p := &Pool{
		frames:    make([]*page.Page, cfg.PoolSize),
		freeList:  make([]primitives.FrameID, 0, cfg.PoolSize),
		pageTable: hash.NewExtendibleTable[primitives.PageID, primitives.FrameID](cfg.BucketSize, hash.Uint64Hash[primitives.PageID]),
		replacer:  NewLRUKReplacer(cfg.PoolSize, cfg.ReplacerK),
		disk:      dm,
	}
	for i := range p.frames {
		p.frames[i] = page.NewPage()
		p.freeList = append(p.freeList, primitives.FrameID(i))
	}
	return p
}

// NewPage allocates a fresh page id, binds it to a frame and pins it.
// The page starts dirty (it exists only in memory). It returns nil when
// every frame is pinned.
func (p *Pool) NewPage() (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok, err := p.obtainFrame()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	id := p.nextPageID
	p.nextPageID++

	frame := p.frames[frameID]
	frame.Reset()
	frame.SetID(id)
	frame.SetDirty(true)
	frame.IncPin()
	p.pageTable.Insert(id, frameID)
	p.replacer.RecordAccess(frameID)
	p.replacer.SetEvictable(frameID, false)
	return frame, nil
}

// FetchPage pins the page, reading it from disk if it is not resident.
// It returns nil when the page is absent and every frame is pinned.
func (p *Pool) FetchPage(id primitives.PageID) (*page.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if frameID, ok := p.pageTable.Find(id); ok {
		frame := p.frames[frameID]
		frame.IncPin()
		p.replacer.RecordAccess(frameID)
		p.replacer.SetEvictable(frameID, false)
		return frame, nil
	}

	frameID, ok, err := p.obtainFrame()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	frame := p.frames[frameID]
	frame.Reset()
	frame.SetID(id)
	frame.IncPin()
	if err := p.disk.ReadPage(id, frame.Data()); err != nil {
		// Undo the binding; the frame goes back to the free list.
		frame.Reset()
		p.freeList = append(p.freeList, frameID)
		return nil, err
	}
	p.pageTable.Insert(id, frameID)
	p.replacer.RecordAccess(frameID)
	p.replacer.SetEvictable(frameID, false)
	return frame, nil
}

// UnpinPage returns a borrow. dirty accumulates: once any borrower
// dirtied the page it stays dirty until flushed. The frame becomes
// evictable when the pin count reaches zero.
func (p *Pool) UnpinPage(id primitives.PageID, dirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable.Find(id)
	if !ok {
		return false
	}
	frame := p.frames[frameID]
	if frame.PinCount() <= 0 {
		return false
	}
	frame.DecPin()
	if dirty {
		frame.SetDirty(true)
	}
	if frame.PinCount() == 0 {
		p.replacer.SetEvictable(frameID, true)
	}
	return true
}

// FlushPage writes the page to disk regardless of its dirty state and
// clears the dirty flag.
func (p *Pool) FlushPage(id primitives.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable.Find(id)
	if !ok {
		return fmt.Errorf("flush: page %d not resident", id)
	}
	frame := p.frames[frameID]
	if err := p.disk.WritePage(id, frame.Data()); err != nil {
		return err
	}
	frame.SetDirty(false)
	return nil
}

// FlushAll writes every resident page to disk.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, frame := range p.frames {
		if frame.ID() == primitives.InvalidPageID {
			continue
		}
		if err := p.disk.WritePage(frame.ID(), frame.Data()); err != nil {
			return err
		}
		frame.SetDirty(false)
	}
	return nil
}

// DeletePage drops the page from the pool and frees its frame. It
// reports false when the page is pinned. Deleting a non-resident page
// succeeds.
func (p *Pool) DeletePage(id primitives.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable.Find(id)
	if !ok {
		return true
	}
	frame := p.frames[frameID]
	if frame.PinCount() > 0 {
		return false
	}
	p.pageTable.Remove(id)
	p.replacer.Remove(frameID)
	frame.Reset()
	p.freeList = append(p.freeList, frameID)
	return true
}

// Size returns the number of frames.
func (p *Pool) Size() int { return len(p.frames) }

// Replacer exposes the replacer for inspection.
func (p *Pool) Replacer() *LRUKReplacer { return p.replacer }

// obtainFrame takes a frame from the free list, or evicts one, writing a
// dirty victim back first. ok is false when no frame can be obtained.
// Caller holds the pool latch.
func (p *Pool) obtainFrame() (primitives.FrameID, bool, error) {
	if n := len(p.freeList); n > 0 {
		frameID := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return frameID, true, nil
	}
	frameID, ok := p.replacer.Evict()
	if !ok {
		return primitives.InvalidFrameID, false, nil
	}
	victim := p.frames[frameID]
	if victim.IsDirty() {
		if err := p.disk.WritePage(victim.ID(), victim.Data()); err != nil {
			return primitives.InvalidFrameID, false, err
		}
		victim.SetDirty(false)
	}
	p.pageTable.Remove(victim.ID())
	return frameID, true, nil
}
