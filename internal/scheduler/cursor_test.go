package scheduler

import (
	"testing"

	"meshnode/internal/store"
)

func TestAdvanceForwardOnEmptyWalksToRequestedBound(t *testing.T) {
	got := advanceForward(0, 1_800_000, nil)
	if got != 1_800_000 {
		t.Fatalf("advanceForward empty = %d, want 1800000", got)
	}
}

func TestAdvanceForwardOnDataJumpsToMax(t *testing.T) {
	reports := []store.LocationReport{{CreatedAt: 500}, {CreatedAt: 1200}, {CreatedAt: 900}}
	got := advanceForward(0, 1_800_000, reports)
	if got != 1200 {
		t.Fatalf("advanceForward with data = %d, want 1200", got)
	}
}

func TestAdvanceBackwardOnEmptyWalksToRequestedBound(t *testing.T) {
	got := advanceBackward(3_000_000, 1_200_000, nil)
	if got != 1_200_000 {
		t.Fatalf("advanceBackward empty = %d, want 1200000", got)
	}
}

func TestAdvanceBackwardOnDataJumpsToMin(t *testing.T) {
	reports := []store.LocationReport{{CreatedAt: 2_500_000}}
	got := advanceBackward(3_000_000, 1_200_000, reports)
	if got != 2_500_000 {
		t.Fatalf("advanceBackward with data = %d, want 2500000", got)
	}
}

func TestBackwardWalkScenario(t *testing.T) {
	// spec.md §8 scenario 3: A has reports at {100, 500, 2_500_000}; B
	// first contacts A at local time 3_000_000 with W=1_800_000.
	const w = 1_800_000

	cursor := int64(3_000_000)
	from := max64(0, cursor-w)
	cursor = advanceBackward(cursor, from, []store.LocationReport{{CreatedAt: 2_500_000}})
	if cursor != 2_500_000 {
		t.Fatalf("tick 1 cursor = %d, want 2500000", cursor)
	}

	from = max64(0, cursor-w)
	if from != 700_000 {
		t.Fatalf("tick 2 requested from = %d, want 700000", from)
	}
	// A has nothing in [700000, 2500000) besides what's already been pulled
	cursor = advanceBackward(cursor, from, nil)
	if cursor != 700_000 {
		t.Fatalf("tick 2 cursor on empty = %d, want 700000", cursor)
	}
}
