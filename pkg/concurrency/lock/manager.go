package lock

import (
	"sync"
	"time"

	"relstore/pkg/concurrency/transaction"
	"relstore/pkg/primitives"
)

// Config tunes the lock manager.
type Config struct {
	// DetectionInterval is how often the deadlock detector wakes.
	DetectionInterval time.Duration
}

// DefaultConfig returns the interval used by the tests and the
// inspector.
func DefaultConfig() Config {
	return Config{DetectionInterval: 50 * time.Millisecond}
}

// Manager grants and releases table and row locks under strict 2PL. The
// maps guarding the queue sets are locked only long enough to find or
// create a queue, never across a wait, and queue mutexes are never
// nested across resources.
type Manager struct {
	tableMu sync.Mutex
	tables  map[primitives.TableID]*requestQueue

	rowMu sync.Mutex
	rows  map[primitives.RID]*requestQueue

	stop chan struct{}
	done chan struct{}
}

// NewManager creates a manager and starts its deadlock detector.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		tables: make(map[primitives.TableID]*requestQueue),
		rows:   make(map[primitives.RID]*requestQueue),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go m.runDetector(cfg.DetectionInterval)
	return m
}

// Close stops the deadlock detector.
func (m *Manager) Close() {
	close(m.stop)
	<-m.done
}

// LockTable acquires mode on table for txn, waiting in the table's
// queue as needed. A second lock by the same transaction is an upgrade.
func (m *Manager) LockTable(txn *transaction.Transaction, mode Mode, table primitives.TableID) error {
	if err := checkLockAllowed(txn, mode); err != nil {
		return err
	}
	q := m.tableQueue(table)
	q.mu.Lock()
	req := &request{txn: txn, mode: mode, table: table}
	return m.enqueue(q, req)
}

// LockRow acquires mode on one row. Only S and X apply to rows, and a
// row X requires the table to be held in X, IX or SIX first.
func (m *Manager) LockRow(txn *transaction.Transaction, mode Mode, table primitives.TableID, rid primitives.RID) error {
	if mode != Shared && mode != Exclusive {
		return abort(txn, IntentionLockOnRow)
	}
	if err := checkLockAllowed(txn, mode); err != nil {
		return err
	}
	if mode == Exclusive && !holdsWriteIntent(txn, table) {
		return abort(txn, TableLockNotPresent)
	}
	q := m.rowQueue(rid)
	q.mu.Lock()
	req := &request{txn: txn, mode: mode, table: table, rid: rid, onRow: true}
	return m.enqueue(q, req)
}

// enqueue runs the queue protocol for req. The caller holds q.mu; it is
// released on every return path.
func (m *Manager) enqueue(q *requestQueue, req *request) error {
	txn := req.txn

	if existing := q.findByTxn(txn.ID()); existing != nil {
		if existing.mode == req.mode {
			q.mu.Unlock()
			return nil
		}
		if q.upgrading != noUpgrader {
			q.mu.Unlock()
			return abort(txn, UpgradeConflict)
		}
		if !CanUpgrade(existing.mode, req.mode) {
			q.mu.Unlock()
			return abort(txn, IncompatibleUpgrade)
		}
		// The upgrade replaces the old grant: drop it, then queue the
		// new request ahead of every plain waiter.
		q.remove(existing)
		m.dropFromLockSets(existing)
		q.insertAfterGranted(req)
		q.upgrading = txn.ID()
		return m.wait(q, req, true)
	}

	q.requests = append(q.requests, req)
	return m.wait(q, req, false)
}

// wait blocks until req is grantable. Each wakeup re-checks the aborted
// flag: the deadlock detector cancels victims by marking them aborted
// and broadcasting on the queue they wait in.
func (m *Manager) wait(q *requestQueue, req *request, upgrade bool) error {
	txn := req.txn
	for !q.canGrant(req) {
		q.cond.Wait()
		if txn.State() == transaction.Aborted {
			if upgrade {
				q.upgrading = noUpgrader
			}
			q.remove(req)
			q.cond.Broadcast()
			q.mu.Unlock()
			return &AbortError{Txn: txn.ID(), Reason: DeadlockVictim}
		}
	}
	req.granted = true
	if upgrade {
		q.upgrading = noUpgrader
	}
	m.addToLockSets(req)
	if req.mode != Exclusive {
		// Other compatible waiters may now be grantable too.
		q.cond.Broadcast()
	}
	q.mu.Unlock()
	return nil
}

// UnlockTable releases txn's table lock and wakes the queue. Unlocking
// with row locks still held under the table, or without a granted lock,
// aborts the transaction.
func (m *Manager) UnlockTable(txn *transaction.Transaction, table primitives.TableID) error {
	m.tableMu.Lock()
	q, ok := m.tables[table]
	m.tableMu.Unlock()
	if !ok {
		return abort(txn, UnlockWithoutLock)
	}
	if txn.HoldsRowLocks(table) {
		return abort(txn, TableUnlockedBeforeRows)
	}
	return m.release(q, txn, true)
}

// UnlockRow releases txn's lock on one row and wakes the queue.
func (m *Manager) UnlockRow(txn *transaction.Transaction, table primitives.TableID, rid primitives.RID) error {
	m.rowMu.Lock()
	q, ok := m.rows[rid]
	m.rowMu.Unlock()
	if !ok {
		return abort(txn, UnlockWithoutLock)
	}
	return m.release(q, txn, true)
}

// release removes txn's granted request from q. With transition set the
// 2PL phase rule applies: releasing X (any level) or S (repeatable
// read) moves the transaction to shrinking.
func (m *Manager) release(q *requestQueue, txn *transaction.Transaction, transition bool) error {
	q.mu.Lock()
	var found *request
	for _, r := range q.requests {
		if r.txn.ID() == txn.ID() && r.granted {
			found = r
			break
		}
	}
	if found == nil {
		q.mu.Unlock()
		return abort(txn, UnlockWithoutLock)
	}
	q.remove(found)
	q.cond.Broadcast()
	q.mu.Unlock()

	if transition && shouldShrink(txn.Isolation(), found.mode) {
		txn.SetState(transaction.Shrinking)
	}
	m.dropFromLockSets(found)
	return nil
}

// UnlockAll releases every lock txn still holds, rows before tables.
// Used at commit and abort; no phase transitions apply.
func (m *Manager) UnlockAll(txn *transaction.Transaction) {
	mu := txn.LockSetMu()

	mu.RLock()
	type rowRef struct {
		table primitives.TableID
		rid   primitives.RID
	}
	var rowRefs []rowRef
	for table, rids := range txn.SharedRows {
		for rid := range rids {
			rowRefs = append(rowRefs, rowRef{table, rid})
		}
	}
	for table, rids := range txn.ExclusiveRows {
		for rid := range rids {
			rowRefs = append(rowRefs, rowRef{table, rid})
		}
	}
	var tableRefs []primitives.TableID
	for _, set := range []map[primitives.TableID]struct{}{
		txn.SharedTables, txn.ExclusiveTables, txn.IntentionSharedTables,
		txn.IntentionExclusiveTables, txn.SharedIntentionTables,
	} {
		for table := range set {
			tableRefs = append(tableRefs, table)
		}
	}
	mu.RUnlock()

	for _, ref := range rowRefs {
		m.rowMu.Lock()
		q, ok := m.rows[ref.rid]
		m.rowMu.Unlock()
		if ok {
			m.release(q, txn, false)
		}
	}
	for _, table := range tableRefs {
		m.tableMu.Lock()
		q, ok := m.tables[table]
		m.tableMu.Unlock()
		if ok {
			m.release(q, txn, false)
		}
	}
}

// GrantedTableModes reports the modes currently granted on table, for
// invariant checks and the inspector.
func (m *Manager) GrantedTableModes(table primitives.TableID) []Mode {
	m.tableMu.Lock()
	q, ok := m.tables[table]
	m.tableMu.Unlock()
	if !ok {
		return nil
	}
	return q.grantedModes()
}

func (m *Manager) tableQueue(table primitives.TableID) *requestQueue {
	m.tableMu.Lock()
	defer m.tableMu.Unlock()
	q, ok := m.tables[table]
	if !ok {
		q = newRequestQueue()
		m.tables[table] = q
	}
	return q
}

func (m *Manager) rowQueue(rid primitives.RID) *requestQueue {
	m.rowMu.Lock()
	defer m.rowMu.Unlock()
	q, ok := m.rows[rid]
	if !ok {
		q = newRequestQueue()
		m.rows[rid] = q
	}
	return q
}

// checkLockAllowed enforces the isolation rules: what may be locked in
// which phase at each level.
func checkLockAllowed(txn *transaction.Transaction, mode Mode) error {
	state := txn.State()
	switch txn.Isolation() {
	case transaction.ReadUncommitted:
		if mode == Shared || mode == IntentionShared || mode == SharedIntentionExclusive {
			return abort(txn, SharedLockOnReadUncommitted)
		}
		if state == transaction.Shrinking {
			return abort(txn, LockOnShrinking)
		}
	case transaction.ReadCommitted:
		if state == transaction.Shrinking && mode != Shared && mode != IntentionShared {
			return abort(txn, LockOnShrinking)
		}
	case transaction.RepeatableRead:
		if state == transaction.Shrinking {
			return abort(txn, LockOnShrinking)
		}
	}
	return nil
}

// shouldShrink implements the unlock phase table.
func shouldShrink(level transaction.IsolationLevel, mode Mode) bool {
	switch level {
	case transaction.RepeatableRead:
		return mode == Shared || mode == Exclusive
	case transaction.ReadCommitted, transaction.ReadUncommitted:
		return mode == Exclusive
	}
	return false
}

// holdsWriteIntent reports whether txn already covers writes to table.
func holdsWriteIntent(txn *transaction.Transaction, table primitives.TableID) bool {
	mu := txn.LockSetMu()
	mu.RLock()
	defer mu.RUnlock()
	if _, ok := txn.ExclusiveTables[table]; ok {
		return true
	}
	if _, ok := txn.IntentionExclusiveTables[table]; ok {
		return true
	}
	_, ok := txn.SharedIntentionTables[table]
	return ok
}

// addToLockSets records a fresh grant on the owning transaction.
func (m *Manager) addToLockSets(req *request) {
	txn := req.txn
	mu := txn.LockSetMu()
	mu.Lock()
	defer mu.Unlock()
	if req.onRow {
		var byTable map[primitives.TableID]map[primitives.RID]struct{}
		if req.mode == Shared {
			byTable = txn.SharedRows
		} else {
			byTable = txn.ExclusiveRows
		}
		rows, ok := byTable[req.table]
		if !ok {
			rows = make(map[primitives.RID]struct{})
			byTable[req.table] = rows
		}
		rows[req.rid] = struct{}{}
		return
	}
	tableSet(txn, req.mode)[req.table] = struct{}{}
}

// dropFromLockSets removes a released or replaced grant.
func (m *Manager) dropFromLockSets(req *request) {
	txn := req.txn
	mu := txn.LockSetMu()
	mu.Lock()
	defer mu.Unlock()
	if req.onRow {
		byTable := txn.SharedRows
		if req.mode == Exclusive {
			byTable = txn.ExclusiveRows
		}
		if rows, ok := byTable[req.table]; ok {
			delete(rows, req.rid)
			if len(rows) == 0 {
				delete(byTable, req.table)
			}
		}
		return
	}
	delete(tableSet(txn, req.mode), req.table)
}

func tableSet(txn *transaction.Transaction, mode Mode) map[primitives.TableID]struct{} {
	switch mode {
	case Shared:
		return txn.SharedTables
	case Exclusive:
		return txn.ExclusiveTables
	case IntentionShared:
		return txn.IntentionSharedTables
	case IntentionExclusive:
		return txn.IntentionExclusiveTables
	default:
		return txn.SharedIntentionTables
	}
}
