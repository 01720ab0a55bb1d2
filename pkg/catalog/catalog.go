// Package catalog maps table names and ids to their schemas, heaps and
// indexes. The executors resolve every table through it; the hot id
// lookup path runs through a ristretto read cache in front of the
// registry, with hit/miss counters for the inspector.
package catalog

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"

	"relstore/pkg/buffer"
	"relstore/pkg/primitives"
	"relstore/pkg/storage/heap"
	"relstore/pkg/storage/index"
	"relstore/pkg/tuple"
	"relstore/pkg/types"
)

// IndexInfo describes one secondary index: the column it keys on and
// the B+tree implementation behind it. Index keys are integers.
type IndexInfo struct {
	ID        primitives.IndexID
	Name      string
	KeyColumn int
	Tree      *index.BTree
}

// TableInfo is the record the executors consume: schema, heap and the
// table's index list.
type TableInfo struct {
	ID      primitives.TableID
	Name    string
	Schema  *tuple.Schema
	Heap    *heap.File
	Indexes []*IndexInfo
}

// Catalog is the in-memory table registry.
type Catalog struct {
	pool *buffer.Pool

	mu      sync.RWMutex
	byID    map[primitives.TableID]*TableInfo
	byName  map[string]primitives.TableID
	nextTab primitives.TableID
	nextIdx primitives.IndexID

	cache  *ristretto.Cache[uint64, *TableInfo]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCatalog creates an empty catalog backed by pool.
func NewCatalog(pool *buffer.Pool) (*Catalog, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[uint64, *TableInfo]{
		NumCounters: 1 << 12,
		MaxCost:     1 << 10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}
	return &Catalog{
		pool:    pool,
		byID:    make(map[primitives.TableID]*TableInfo),
		byName:  make(map[string]primitives.TableID),
		nextTab: 1,
		nextIdx: 1,
		cache:   cache,
	}, nil
}

// Close releases the lookup cache.
func (c *Catalog) Close() { c.cache.Close() }

// CreateTable registers a table and its empty heap.
func (c *Catalog) CreateTable(name string, schema *tuple.Schema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[name]; ok {
		return nil, fmt.Errorf("table %q already exists", name)
	}
	id := c.nextTab
	c.nextTab++
	info := &TableInfo{
		ID:     id,
		Name:   name,
		Schema: schema,
		Heap:   heap.NewFile(c.pool, id, schema),
	}
	c.byID[id] = info
	c.byName[name] = id
	return info, nil
}

// CreateIndex registers a B+tree index over one integer column of an
// existing table. Existing rows are indexed immediately.
func (c *Catalog) CreateIndex(table, name string, keyColumn int, leafMax, internalMax int) (*IndexInfo, error) {
	info, err := c.GetTableByName(table)
	if err != nil {
		return nil, err
	}
	if keyColumn < 0 || keyColumn >= info.Schema.NumColumns() {
		return nil, fmt.Errorf("index %q: no column %d in %q", name, keyColumn, table)
	}

	c.mu.Lock()
	idx := &IndexInfo{
		ID:        c.nextIdx,
		Name:      name,
		KeyColumn: keyColumn,
		Tree:      index.NewBTree(c.pool, leafMax, internalMax),
	}
	c.nextIdx++
	info.Indexes = append(info.Indexes, idx)
	c.mu.Unlock()

	if err := c.backfill(info, idx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (c *Catalog) backfill(info *TableInfo, idx *IndexInfo) error {
	it := info.Heap.Iterate()
	for {
		t, err := it.Next()
		if err != nil {
			return err
		}
		if t == nil {
			return nil
		}
		key, err := IndexKey(t, idx)
		if err != nil {
			return err
		}
		if _, err := idx.Tree.Insert(key, t.RID); err != nil {
			return err
		}
	}
}

// GetTable resolves a table id, through the cache.
func (c *Catalog) GetTable(id primitives.TableID) (*TableInfo, error) {
	if info, ok := c.cache.Get(uint64(id)); ok {
		c.hits.Add(1)
		return info, nil
	}
	c.misses.Add(1)

	c.mu.RLock()
	info, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no table with id %d", id)
	}
	c.cache.Set(uint64(id), info, 1)
	return info, nil
}

// GetTableByName resolves a table name.
func (c *Catalog) GetTableByName(name string) (*TableInfo, error) {
	c.mu.RLock()
	id, ok := c.byName[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no table named %q", name)
	}
	return c.GetTable(id)
}

// CacheStats reports lookup cache hits and misses.
func (c *Catalog) CacheStats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// IndexKey extracts idx's integer key from t.
func IndexKey(t *tuple.Tuple, idx *IndexInfo) (int64, error) {
	f, ok := t.Fields[idx.KeyColumn].(types.IntField)
	if !ok {
		return 0, fmt.Errorf("index %q keys on a non-integer column", idx.Name)
	}
	return f.Value, nil
}
