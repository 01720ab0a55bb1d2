package hash

import (
	"fmt"
	"sync"
	"testing"
)

// identity makes the directory arithmetic predictable in tests.
func identity(k int) uint64 { return uint64(k) }

// Directory growth: inserting 1, 2, 3 doubles the directory twice.
// Keys 1 and 3 collide until bit 1 separates them.
func TestExtendibleGrowth(t *testing.T) {
	table := NewExtendibleTable[int, string](1, identity)

	if got := table.GlobalDepth(); got != 0 {
		t.Fatalf("initial global depth = %d, want 0", got)
	}

	table.Insert(1, "A")
	table.Insert(2, "B")
	if got := table.GlobalDepth(); got != 1 {
		t.Fatalf("global depth after first split = %d, want 1", got)
	}

	table.Insert(3, "C")
	if got := table.GlobalDepth(); got != 2 {
		t.Fatalf("global depth after second split = %d, want 2", got)
	}
	for k, want := range map[int]string{1: "A", 2: "B", 3: "C"} {
		got, ok := table.Find(k)
		if !ok || got != want {
			t.Errorf("Find(%d) = %q, %v; want %q", k, got, ok, want)
		}
	}
}

// With room for two entries per bucket the same inserts need only one
// split.
func TestExtendibleGrowthBucketTwo(t *testing.T) {
	table := NewExtendibleTable[int, string](2, identity)
	table.Insert(1, "A")
	table.Insert(2, "B")
	table.Insert(3, "C")
	if got := table.GlobalDepth(); got != 1 {
		t.Fatalf("global depth = %d, want 1", got)
	}
	if got, ok := table.Find(2); !ok || got != "B" {
		t.Fatalf("Find(2) = %q, %v; want B", got, ok)
	}
}

func TestExtendibleOverwrite(t *testing.T) {
	table := NewExtendibleTable[int, int](4, identity)
	table.Insert(7, 1)
	table.Insert(7, 2)
	if got, ok := table.Find(7); !ok || got != 2 {
		t.Fatalf("Find(7) = %d, %v; want 2", got, ok)
	}
}

func TestExtendibleRemove(t *testing.T) {
	table := NewExtendibleTable[int, int](2, identity)
	for i := 0; i < 16; i++ {
		table.Insert(i, i*10)
	}
	if !table.Remove(5) {
		t.Fatal("Remove(5) reported absent")
	}
	if table.Remove(5) {
		t.Fatal("second Remove(5) reported present")
	}
	if _, ok := table.Find(5); ok {
		t.Fatal("Find(5) after removal succeeded")
	}
	for _, k := range []int{0, 1, 2, 3, 4, 6, 7, 15} {
		if got, ok := table.Find(k); !ok || got != k*10 {
			t.Errorf("Find(%d) = %d, %v; want %d", k, got, ok, k*10)
		}
	}
}

// Identically hashing keys at the old depth force repeated splits.
func TestExtendibleRepeatedSplit(t *testing.T) {
	table := NewExtendibleTable[int, int](2, identity)
	// 0, 8, 16 share the three low bits.
	for _, k := range []int{0, 8, 16} {
		table.Insert(k, k)
	}
	if got := table.GlobalDepth(); got < 3 {
		t.Fatalf("global depth = %d, want at least 3", got)
	}
	for _, k := range []int{0, 8, 16} {
		if got, ok := table.Find(k); !ok || got != k {
			t.Errorf("Find(%d) = %d, %v", k, got, ok)
		}
	}
}

func TestExtendibleLocalDepths(t *testing.T) {
	table := NewExtendibleTable[int, int](1, identity)
	table.Insert(0, 0)
	table.Insert(1, 1)

	// One split: both buckets at local depth 1 == global depth.
	if got := table.GlobalDepth(); got != 1 {
		t.Fatalf("global depth = %d, want 1", got)
	}
	if got := table.NumBuckets(); got != 2 {
		t.Fatalf("buckets = %d, want 2", got)
	}
	for slot := 0; slot < 2; slot++ {
		if got := table.LocalDepth(slot); got != 1 {
			t.Errorf("local depth of slot %d = %d, want 1", slot, got)
		}
	}
}

func TestExtendibleWithDefaultHash(t *testing.T) {
	table := NewExtendibleTable[int64, string](4, Uint64Hash)
	const n = 512
	for i := int64(0); i < n; i++ {
		table.Insert(i, fmt.Sprintf("v%d", i))
	}
	for i := int64(0); i < n; i++ {
		if got, ok := table.Find(i); !ok || got != fmt.Sprintf("v%d", i) {
			t.Fatalf("Find(%d) = %q, %v", i, got, ok)
		}
	}
}

func TestExtendibleConcurrentAccess(t *testing.T) {
	table := NewExtendibleTable[int, int](4, identity)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k := base*1000 + i
				table.Insert(k, k)
				if got, ok := table.Find(k); !ok || got != k {
					t.Errorf("Find(%d) = %d, %v", k, got, ok)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}
