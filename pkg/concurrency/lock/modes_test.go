package lock

import "testing"

// The full compatibility matrix from the design: rows are the held
// mode, columns the requested mode, in IS, IX, S, SIX, X order.
func TestCompatibilityMatrix(t *testing.T) {
	order := []Mode{IntentionShared, IntentionExclusive, Shared, SharedIntentionExclusive, Exclusive}
	want := [5][5]bool{
		{true, true, true, true, false},    // IS
		{true, true, false, false, false},  // IX
		{true, false, true, false, false},  // S
		{true, false, false, false, false}, // SIX
		{false, false, false, false, false}, // X
	}
	for i, held := range order {
		for j, requested := range order {
			if got := Compatible(held, requested); got != want[i][j] {
				t.Errorf("Compatible(%v, %v) = %v, want %v", held, requested, got, want[i][j])
			}
		}
	}
}

func TestUpgradePaths(t *testing.T) {
	allowed := map[Mode][]Mode{
		IntentionShared:          {Shared, Exclusive, IntentionExclusive, SharedIntentionExclusive},
		Shared:                   {Exclusive, SharedIntentionExclusive},
		IntentionExclusive:       {Exclusive, SharedIntentionExclusive},
		SharedIntentionExclusive: {Exclusive},
	}
	every := []Mode{IntentionShared, IntentionExclusive, Shared, SharedIntentionExclusive, Exclusive}
	for _, from := range every {
		for _, to := range every {
			want := false
			for _, m := range allowed[from] {
				if m == to {
					want = true
				}
			}
			if got := CanUpgrade(from, to); got != want {
				t.Errorf("CanUpgrade(%v, %v) = %v, want %v", from, to, got, want)
			}
		}
	}
}
