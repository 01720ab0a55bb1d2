// Package lock implements the hierarchical two-phase lock manager:
// table and row locks in five modes, FIFO wait queues with upgrades,
// and a background deadlock detector that breaks cycles by aborting the
// youngest participant.
package lock

import "fmt"

// Mode is a lock mode. Intention modes exist only at table granularity.
type Mode int

const (
	IntentionShared Mode = iota
	IntentionExclusive
	Shared
	SharedIntentionExclusive
	Exclusive
)

func (m Mode) String() string {
	switch m {
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case Shared:
		return "S"
	case SharedIntentionExclusive:
		return "SIX"
	case Exclusive:
		return "X"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Compatible reports whether a lock held in mode `held` coexists with a
// request for mode `requested` on the same resource.
func Compatible(held, requested Mode) bool {
	switch held {
	case IntentionShared:
		return requested != Exclusive
	case IntentionExclusive:
		return requested == IntentionShared || requested == IntentionExclusive
	case Shared:
		return requested == IntentionShared || requested == Shared
	case SharedIntentionExclusive:
		return requested == IntentionShared
	case Exclusive:
		return false
	}
	return false
}

// CanUpgrade reports whether a held lock may be upgraded from `from` to
// `to`. The legal upgrades are IS→{S,X,IX,SIX}, S→{X,SIX}, IX→{X,SIX}
// and SIX→X.
func CanUpgrade(from, to Mode) bool {
	switch from {
	case IntentionShared:
		return to == Shared || to == Exclusive || to == IntentionExclusive || to == SharedIntentionExclusive
	case Shared:
		return to == Exclusive || to == SharedIntentionExclusive
	case IntentionExclusive:
		return to == Exclusive || to == SharedIntentionExclusive
	case SharedIntentionExclusive:
		return to == Exclusive
	}
	return false
}
