package transaction

import "testing"

func TestIDsAreMonotonic(t *testing.T) {
	a := New(RepeatableRead)
	b := New(RepeatableRead)
	if b.ID() <= a.ID() {
		t.Fatalf("ids not increasing: %d then %d", a.ID(), b.ID())
	}
}

func TestStateTransitions(t *testing.T) {
	txn := New(ReadCommitted)
	if got := txn.State(); got != Growing {
		t.Fatalf("initial state = %v", got)
	}
	txn.SetState(Shrinking)
	if got := txn.State(); got != Shrinking {
		t.Fatalf("state = %v, want shrinking", got)
	}
	txn.SetState(Committed)
	if got := txn.State(); got != Committed {
		t.Fatalf("state = %v, want committed", got)
	}
}

func TestTerminalStatesStick(t *testing.T) {
	txn := New(RepeatableRead)
	txn.SetState(Aborted)
	txn.SetState(Growing)
	if got := txn.State(); got != Aborted {
		t.Fatalf("aborted transaction transitioned to %v", got)
	}

	txn2 := New(RepeatableRead)
	txn2.SetState(Committed)
	txn2.SetState(Aborted)
	if got := txn2.State(); got != Committed {
		t.Fatalf("committed transaction transitioned to %v", got)
	}
}

func TestHoldsRowLocks(t *testing.T) {
	txn := New(RepeatableRead)
	if txn.HoldsRowLocks(1) {
		t.Fatal("fresh transaction holds row locks")
	}
}
