// Package hash provides the in-memory extendible hash directory used by
// the buffer pool as its page table.
package hash

import (
	"encoding/binary"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// HashFunc maps a key to the 64-bit hash the directory indexes with.
type HashFunc[K comparable] func(K) uint64

// Uint64Hash hashes any integer-like key through xxhash of its 8-byte
// little-endian encoding. It is the hash used for page ids.
func Uint64Hash[K ~int32 | ~int64 | ~uint32 | ~uint64 | ~int](key K) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(int64(key)))
	return xxhash.Sum64(b[:])
}

type entry[K comparable, V any] struct {
	key K
	val V
}

// bucket holds up to size entries at local depth depth. Directory slots
// whose hash bits agree on the low depth bits share one bucket.
type bucket[K comparable, V any] struct {
	items []entry[K, V]
	size  int
	depth int
}

func newBucket[K comparable, V any](size, depth int) *bucket[K, V] {
	return &bucket[K, V]{
		items: make([]entry[K, V], 0, size),
		size:  size,
		depth: depth,
	}
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for _, it := range b.items {
		if it.key == key {
			return it.val, true
		}
	}
	var zero V
	return zero, false
}

func (b *bucket[K, V]) remove(key K) bool {
	for i, it := range b.items {
		if it.key == key {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// insert overwrites a duplicate key in place. It reports false when the
// bucket is full and the key is new, which triggers a split.
func (b *bucket[K, V]) insert(key K, val V) bool {
	for i, it := range b.items {
		if it.key == key {
			b.items[i].val = val
			return true
		}
	}
	if len(b.items) >= b.size {
		return false
	}
	b.items = append(b.items, entry[K, V]{key: key, val: val})
	return true
}

// ExtendibleTable is a mutex-protected extendible hash table. The
// directory doubles whenever a full bucket's local depth has reached the
// global depth; buckets split by redistributing on the next hash bit.
type ExtendibleTable[K comparable, V any] struct {
	mu          sync.Mutex
	globalDepth int
	bucketSize  int
	numBuckets  int
	dir         []*bucket[K, V]
	hash        HashFunc[K]
}

// NewExtendibleTable creates a table whose buckets hold bucketSize
// entries each. The initial directory has a single logical bucket.
func NewExtendibleTable[K comparable, V any](bucketSize int, hash HashFunc[K]) *ExtendibleTable[K, V] {
	b := newBucket[K, V](bucketSize, 0)
	return &ExtendibleTable[K, V]{
		globalDepth: 0,
		bucketSize:  bucketSize,
		numBuckets:  1,
		dir:         []*bucket[K, V]{b},
		hash:        hash,
	}
}

func (t *ExtendibleTable[K, V]) indexOf(key K) int {
	mask := (1 << t.globalDepth) - 1
	return int(t.hash(key)) & mask
}

// Find returns the value bound to key.
func (t *ExtendibleTable[K, V]) Find(key K) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.indexOf(key)].find(key)
}

// Remove deletes key and reports whether it was present.
func (t *ExtendibleTable[K, V]) Remove(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[t.indexOf(key)].remove(key)
}

// Insert binds key to val, overwriting a previous binding. Full buckets
// split, possibly repeatedly when every resident entry hashes identically
// at the old depth.
func (t *ExtendibleTable[K, V]) Insert(key K, val V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for !t.dir[t.indexOf(key)].insert(key, val) {
		target := t.dir[t.indexOf(key)]

		if target.depth == t.globalDepth {
			// Directory is as deep as the bucket: double it, the upper
			// half mirroring the lower.
			t.globalDepth++
			old := len(t.dir)
			t.dir = append(t.dir, t.dir[:old]...)
		}

		// Split target on the bit its new depth exposes.
		maskBit := uint64(1) << target.depth
		zero := newBucket[K, V](t.bucketSize, target.depth+1)
		one := newBucket[K, V](t.bucketSize, target.depth+1)
		for _, it := range target.items {
			if t.hash(it.key)&maskBit != 0 {
				one.items = append(one.items, it)
			} else {
				zero.items = append(zero.items, it)
			}
		}
		t.numBuckets++

		for i := range t.dir {
			if t.dir[i] == target {
				if uint64(i)&maskBit != 0 {
					t.dir[i] = one
				} else {
					t.dir[i] = zero
				}
			}
		}
	}
}

// GlobalDepth returns the directory's depth (directory size is 2^depth).
func (t *ExtendibleTable[K, V]) GlobalDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalDepth
}

// LocalDepth returns the depth of the bucket at directory slot dirIndex.
func (t *ExtendibleTable[K, V]) LocalDepth(dirIndex int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dir[dirIndex].depth
}

// NumBuckets returns the number of distinct buckets.
func (t *ExtendibleTable[K, V]) NumBuckets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.numBuckets
}
