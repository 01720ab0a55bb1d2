package lock

import (
	"errors"
	"testing"
	"time"

	"relstore/pkg/concurrency/transaction"
	"relstore/pkg/primitives"
)

const testTable primitives.TableID = 1

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(Config{DetectionInterval: 10 * time.Millisecond})
	t.Cleanup(m.Close)
	return m
}

func mustLockTable(t *testing.T, m *Manager, txn *transaction.Transaction, mode Mode) {
	t.Helper()
	if err := m.LockTable(txn, mode, testTable); err != nil {
		t.Fatalf("LockTable(%v, %v): %v", txn.ID(), mode, err)
	}
}

func abortReason(t *testing.T, err error) AbortReason {
	t.Helper()
	var ae *AbortError
	if !errors.As(err, &ae) {
		t.Fatalf("error %v is not an AbortError", err)
	}
	return ae.Reason
}

func TestSharedLocksCoexist(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.RepeatableRead)
	t2 := transaction.New(transaction.RepeatableRead)

	mustLockTable(t, m, t1, Shared)
	mustLockTable(t, m, t2, Shared)

	modes := m.GrantedTableModes(testTable)
	if len(modes) != 2 {
		t.Fatalf("granted = %v, want two S grants", modes)
	}
}

func TestGrantedModesStayPairwiseCompatible(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.RepeatableRead)
	t2 := transaction.New(transaction.RepeatableRead)
	t3 := transaction.New(transaction.RepeatableRead)

	mustLockTable(t, m, t1, IntentionShared)
	mustLockTable(t, m, t2, IntentionExclusive)
	mustLockTable(t, m, t3, IntentionExclusive)

	modes := m.GrantedTableModes(testTable)
	for i, a := range modes {
		for j, b := range modes {
			if i != j && !Compatible(a, b) {
				t.Fatalf("incompatible grants coexist: %v", modes)
			}
		}
	}
}

func TestExclusiveBlocksUntilRelease(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.RepeatableRead)
	t2 := transaction.New(transaction.RepeatableRead)

	mustLockTable(t, m, t1, Exclusive)

	acquired := make(chan error, 1)
	go func() {
		acquired <- m.LockTable(t2, Exclusive, testTable)
	}()

	select {
	case err := <-acquired:
		t.Fatalf("second X granted while first held: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	if err := m.UnlockTable(t1, testTable); err != nil {
		t.Fatalf("UnlockTable: %v", err)
	}
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("waiter failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never granted after release")
	}
}

func TestReacquireSameModeIsNoOp(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.RepeatableRead)
	mustLockTable(t, m, t1, Shared)
	mustLockTable(t, m, t1, Shared)
	if modes := m.GrantedTableModes(testTable); len(modes) != 1 {
		t.Fatalf("granted = %v, want one grant", modes)
	}
}

// The worked upgrade example: T1 holds S, T2 queues X, T1's upgrade to
// X jumps the queue and wins as soon as its S drops; T2 gets the lock
// only after T1 unlocks.
func TestUpgradeJumpsWaitQueue(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.RepeatableRead)
	t2 := transaction.New(transaction.RepeatableRead)

	mustLockTable(t, m, t1, Shared)

	t2granted := make(chan error, 1)
	go func() {
		t2granted <- m.LockTable(t2, Exclusive, testTable)
	}()
	time.Sleep(20 * time.Millisecond) // let T2 reach the queue

	// The upgrade replaces T1's S and is granted immediately: nothing
	// else is granted and T2 sits behind it.
	if err := m.LockTable(t1, Exclusive, testTable); err != nil {
		t.Fatalf("upgrade: %v", err)
	}

	select {
	case err := <-t2granted:
		t.Fatalf("T2 granted before T1 unlocked: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	if err := m.UnlockTable(t1, testTable); err != nil {
		t.Fatalf("UnlockTable: %v", err)
	}
	select {
	case err := <-t2granted:
		if err != nil {
			t.Fatalf("T2 failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("T2 never granted")
	}
}

func TestSecondUpgradeAborts(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.RepeatableRead)
	t2 := transaction.New(transaction.RepeatableRead)
	t3 := transaction.New(transaction.RepeatableRead)

	mustLockTable(t, m, t1, Shared)
	mustLockTable(t, m, t2, Shared)
	mustLockTable(t, m, t3, Shared)

	// T1's upgrade waits behind the other two S grants.
	t1upgrade := make(chan error, 1)
	go func() {
		t1upgrade <- m.LockTable(t1, Exclusive, testTable)
	}()
	time.Sleep(20 * time.Millisecond)

	err := m.LockTable(t2, Exclusive, testTable)
	if err == nil {
		t.Fatal("second concurrent upgrade succeeded")
	}
	if got := abortReason(t, err); got != UpgradeConflict {
		t.Fatalf("reason = %v, want upgrade conflict", got)
	}
	if t2.State() != transaction.Aborted {
		t.Fatal("conflicting upgrader not aborted")
	}

	// Clear the way for T1's pending upgrade.
	m.UnlockAll(t2)
	if err := m.UnlockTable(t3, testTable); err != nil {
		t.Fatalf("UnlockTable(t3): %v", err)
	}
	if err := <-t1upgrade; err != nil {
		t.Fatalf("T1 upgrade failed: %v", err)
	}
}

func TestIncompatibleUpgradeAborts(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.RepeatableRead)

	mustLockTable(t, m, t1, Exclusive)
	err := m.LockTable(t1, Shared, testTable)
	if err == nil {
		t.Fatal("downgrade accepted")
	}
	if got := abortReason(t, err); got != IncompatibleUpgrade {
		t.Fatalf("reason = %v, want incompatible upgrade", got)
	}
}

func TestUnlockWithoutLockAborts(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.RepeatableRead)

	err := m.UnlockTable(t1, testTable)
	if err == nil {
		t.Fatal("unlock without lock succeeded")
	}
	if got := abortReason(t, err); got != UnlockWithoutLock {
		t.Fatalf("reason = %v", got)
	}
}

func TestUnlockTableBeforeRowsAborts(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.RepeatableRead)
	rid := primitives.NewRID(4, 2)

	mustLockTable(t, m, t1, IntentionExclusive)
	if err := m.LockRow(t1, Exclusive, testTable, rid); err != nil {
		t.Fatalf("LockRow: %v", err)
	}

	err := m.UnlockTable(t1, testTable)
	if err == nil {
		t.Fatal("table unlocked while rows held")
	}
	if got := abortReason(t, err); got != TableUnlockedBeforeRows {
		t.Fatalf("reason = %v", got)
	}
}

func TestRowLockRules(t *testing.T) {
	m := newTestManager(t)
	rid := primitives.NewRID(4, 2)

	t1 := transaction.New(transaction.RepeatableRead)
	err := m.LockRow(t1, IntentionShared, testTable, rid)
	if err == nil {
		t.Fatal("intention lock on row accepted")
	}
	if got := abortReason(t, err); got != IntentionLockOnRow {
		t.Fatalf("reason = %v", got)
	}

	// Row X without a covering table lock.
	t2 := transaction.New(transaction.RepeatableRead)
	err = m.LockRow(t2, Exclusive, testTable, rid)
	if err == nil {
		t.Fatal("row X without table intent accepted")
	}
	if got := abortReason(t, err); got != TableLockNotPresent {
		t.Fatalf("reason = %v", got)
	}

	// With IX on the table the row X goes through.
	t3 := transaction.New(transaction.RepeatableRead)
	mustLockTable(t, m, t3, IntentionExclusive)
	if err := m.LockRow(t3, Exclusive, testTable, rid); err != nil {
		t.Fatalf("LockRow under IX: %v", err)
	}
}

func TestReadUncommittedForbidsSharedLocks(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.ReadUncommitted)

	for _, mode := range []Mode{Shared, IntentionShared, SharedIntentionExclusive} {
		err := m.LockTable(transaction.New(transaction.ReadUncommitted), mode, testTable)
		if err == nil {
			t.Fatalf("%v accepted at read-uncommitted", mode)
		}
	}

	// X and IX remain legal.
	mustLockTable(t, m, t1, IntentionExclusive)
}

func TestLockOnShrinkingAborts(t *testing.T) {
	m := newTestManager(t)

	// Repeatable read: releasing S enters shrinking; any further lock
	// aborts.
	t1 := transaction.New(transaction.RepeatableRead)
	mustLockTable(t, m, t1, Shared)
	if err := m.UnlockTable(t1, testTable); err != nil {
		t.Fatalf("UnlockTable: %v", err)
	}
	if t1.State() != transaction.Shrinking {
		t.Fatalf("state = %v, want shrinking", t1.State())
	}
	err := m.LockTable(t1, Shared, testTable)
	if err == nil {
		t.Fatal("lock on shrinking accepted")
	}
	if got := abortReason(t, err); got != LockOnShrinking {
		t.Fatalf("reason = %v", got)
	}
}

func TestReadCommittedAllowsSharedWhileShrinking(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.ReadCommitted)

	mustLockTable(t, m, t1, IntentionExclusive)
	rid := primitives.NewRID(1, 1)
	if err := m.LockRow(t1, Exclusive, testTable, rid); err != nil {
		t.Fatalf("LockRow: %v", err)
	}
	if err := m.UnlockRow(t1, testTable, rid); err != nil {
		t.Fatalf("UnlockRow: %v", err)
	}
	if t1.State() != transaction.Shrinking {
		t.Fatalf("state = %v, want shrinking after X release", t1.State())
	}

	// S and IS stay legal while shrinking at read-committed.
	if err := m.LockRow(t1, Shared, testTable, rid); err != nil {
		t.Fatalf("S while shrinking: %v", err)
	}
	err := m.LockTable(t1, IntentionExclusive, 2)
	if err == nil {
		t.Fatal("IX while shrinking accepted at read-committed")
	}
}

// Lock-then-unlock round trip: a fresh compatible lock succeeds with no
// residue from the previous request.
func TestUnlockLeavesCleanQueue(t *testing.T) {
	m := newTestManager(t)
	t1 := transaction.New(transaction.ReadCommitted)
	t2 := transaction.New(transaction.ReadCommitted)

	mustLockTable(t, m, t1, Shared)
	if err := m.UnlockTable(t1, testTable); err != nil {
		t.Fatalf("UnlockTable: %v", err)
	}
	if modes := m.GrantedTableModes(testTable); len(modes) != 0 {
		t.Fatalf("granted after unlock = %v", modes)
	}
	mustLockTable(t, m, t2, Exclusive)
}
