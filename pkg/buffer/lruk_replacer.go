package buffer

import (
	"fmt"
	"sync"

	"relstore/pkg/primitives"
)

// frameInfo is the replacer's per-frame bookkeeping: how often and when
// the frame was touched, and whether the pool allows evicting it.
type frameInfo struct {
	id primitives.FrameID

	// history keeps the last k access timestamps, oldest first.
	history   []uint64
	accesses  uint64
	evictable bool
}

// earliest is the frame's first recorded access still in the window.
func (f *frameInfo) earliest() uint64 { return f.history[0] }

// LRUKReplacer picks eviction victims for the buffer pool. Frames with
// fewer than k recorded accesses live in the history set and are evicted
// first, strict LRU on their earliest access. Frames with k or more
// accesses are ranked by backward k-distance: the oldest k-th most recent
// access loses.
//
// The replacer only selects; moving pages in and out of frames is the
// buffer pool's job.
type LRUKReplacer struct {
	mu       sync.Mutex
	capacity int
	k        int
	clock    uint64

	frames    map[primitives.FrameID]*frameInfo
	evictable int
}

// NewLRUKReplacer creates a replacer for frame ids in [0, capacity).
func NewLRUKReplacer(capacity, k int) *LRUKReplacer {
	return &LRUKReplacer{
		capacity: capacity,
		k:        k,
		frames:   make(map[primitives.FrameID]*frameInfo, capacity),
	}
}

// RecordAccess notes one access to frame. A frame seen for the first time
// starts non-evictable until the pool says otherwise.
func (r *LRUKReplacer) RecordAccess(frame primitives.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkFrame(frame); err != nil {
		return err
	}
	r.clock++
	info, ok := r.frames[frame]
	if !ok {
		info = &frameInfo{id: frame}
		r.frames[frame] = info
	}
	info.accesses++
	info.history = append(info.history, r.clock)
	if len(info.history) > r.k {
		info.history = info.history[1:]
	}
	return nil
}

// SetEvictable toggles whether frame may be chosen by Evict.
func (r *LRUKReplacer) SetEvictable(frame primitives.FrameID, evictable bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkFrame(frame); err != nil {
		return err
	}
	info, ok := r.frames[frame]
	if !ok {
		return nil
	}
	if evictable && !info.evictable {
		r.evictable++
	} else if !evictable && info.evictable {
		r.evictable--
	}
	info.evictable = evictable
	return nil
}

// Evict selects and removes a victim frame. It reports false when no
// frame is evictable.
func (r *LRUKReplacer) Evict() (primitives.FrameID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var victim *frameInfo

	// History frames first: strict LRU on the earliest access.
	for _, info := range r.frames {
		if !info.evictable || info.accesses >= uint64(r.k) {
			continue
		}
		if victim == nil || info.earliest() < victim.earliest() {
			victim = info
		}
	}

	// Otherwise rank cache frames by backward k-distance. Every access
	// takes its own clock value, so no two frames share a k-th most
	// recent access and the tie clause below never decides.
	if victim == nil {
		for _, info := range r.frames {
			if !info.evictable || info.accesses < uint64(r.k) {
				continue
			}
			if victim == nil {
				victim = info
				continue
			}
			vd, id := victim.history[0], info.history[0]
			if id < vd || (id == vd && info.earliest() < victim.earliest()) {
				victim = info
			}
		}
	}

	if victim == nil {
		return primitives.InvalidFrameID, false
	}
	delete(r.frames, victim.id)
	r.evictable--
	return victim.id, true
}

// Remove drops a frame's access state unconditionally. Removing an
// untracked frame is a no-op; removing a non-evictable frame is an error.
func (r *LRUKReplacer) Remove(frame primitives.FrameID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.frames[frame]
	if !ok {
		return nil
	}
	if !info.evictable {
		return fmt.Errorf("frame %d is not evictable", frame)
	}
	delete(r.frames, frame)
	r.evictable--
	return nil
}

// Size returns the number of evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictable
}

func (r *LRUKReplacer) checkFrame(frame primitives.FrameID) error {
	if frame < 0 || int(frame) >= r.capacity {
		return fmt.Errorf("frame %d out of range [0, %d)", frame, r.capacity)
	}
	return nil
}
