package catalog

import (
	"path/filepath"
	"testing"

	"relstore/pkg/buffer"
	"relstore/pkg/storage/disk"
	"relstore/pkg/tuple"
	"relstore/pkg/types"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	dm, err := disk.NewFileManager(filepath.Join(t.TempDir(), "cat.db"))
	if err != nil {
		t.Fatalf("NewFileManager: %v", err)
	}
	t.Cleanup(func() { dm.Close() })
	pool := buffer.NewPool(buffer.Config{PoolSize: 32, ReplacerK: 2, BucketSize: 4}, dm)
	cat, err := NewCatalog(pool)
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	t.Cleanup(cat.Close)
	return cat
}

func intSchema(t *testing.T) *tuple.Schema {
	t.Helper()
	s, err := tuple.NewSchema([]string{"id"}, []types.Type{types.IntType})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	return s
}

func TestCreateAndLookupTable(t *testing.T) {
	cat := newTestCatalog(t)
	info, err := cat.CreateTable("orders", intSchema(t))
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	byID, err := cat.GetTable(info.ID)
	if err != nil || byID != info {
		t.Fatalf("GetTable = %v, %v", byID, err)
	}
	byName, err := cat.GetTableByName("orders")
	if err != nil || byName != info {
		t.Fatalf("GetTableByName = %v, %v", byName, err)
	}

	if _, err := cat.CreateTable("orders", intSchema(t)); err == nil {
		t.Error("duplicate table name accepted")
	}
	if _, err := cat.GetTableByName("ghost"); err == nil {
		t.Error("unknown table resolved")
	}
}

func TestLookupCacheCounters(t *testing.T) {
	cat := newTestCatalog(t)
	info, _ := cat.CreateTable("orders", intSchema(t))

	for i := 0; i < 10; i++ {
		if _, err := cat.GetTable(info.ID); err != nil {
			t.Fatalf("GetTable: %v", err)
		}
	}
	hits, misses := cat.CacheStats()
	if misses == 0 {
		t.Error("first lookup should miss")
	}
	if hits+misses != 10 {
		t.Errorf("hits %d + misses %d != 10 lookups", hits, misses)
	}
}

func TestCreateIndexBackfills(t *testing.T) {
	cat := newTestCatalog(t)
	info, _ := cat.CreateTable("orders", intSchema(t))

	for i := int64(1); i <= 5; i++ {
		row, err := tuple.NewTuple(info.Schema, types.NewIntField(i))
		if err != nil {
			t.Fatalf("NewTuple: %v", err)
		}
		if _, err := info.Heap.InsertTuple(row); err != nil {
			t.Fatalf("InsertTuple: %v", err)
		}
	}

	idx, err := cat.CreateIndex("orders", "orders_pk", 0, 4, 4)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	for i := int64(1); i <= 5; i++ {
		rid, ok, err := idx.Tree.GetValue(i)
		if err != nil || !ok {
			t.Fatalf("backfilled key %d: %v %v", i, ok, err)
		}
		got, err := info.Heap.GetTuple(rid)
		if err != nil {
			t.Fatalf("GetTuple: %v", err)
		}
		if got.Fields[0].(types.IntField).Value != i {
			t.Fatalf("index maps %d to row %v", i, got)
		}
	}

	if _, err := cat.CreateIndex("orders", "bad", 7, 4, 4); err == nil {
		t.Error("index on missing column accepted")
	}
	if _, err := cat.CreateIndex("ghost", "bad", 0, 4, 4); err == nil {
		t.Error("index on missing table accepted")
	}
}
