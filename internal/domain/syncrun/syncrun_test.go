package syncrun

import "testing"

func TestModeValid(t *testing.T) {
	if !SeedNewOnly.Valid() {
		t.Error("SeedNewOnly should be valid")
	}
	if !FullRefresh.Valid() {
		t.Error("FullRefresh should be valid")
	}
	if Mode("").Valid() {
		t.Error("empty mode should be invalid")
	}
	if Mode("everything").Valid() {
		t.Error("unknown mode should be invalid")
	}
}

func TestStatsAdd(t *testing.T) {
	s := Stats{Added: 1, Updated: 2}
	s.Add(Stats{Added: 3, Skipped: 4, Errored: 5})

	want := Stats{Added: 4, Updated: 2, Skipped: 4, Errored: 5}
	if s != want {
		t.Errorf("Add = %+v, want %+v", s, want)
	}
}

func TestFailedSentinel(t *testing.T) {
	if !Failed().IsFailed() {
		t.Error("Failed() should report IsFailed")
	}
	if (Stats{}).IsFailed() {
		t.Error("zero stats must not read as failed")
	}
	if (Stats{Errored: 3}).IsFailed() {
		t.Error("positive errored count must not read as failed")
	}
}

func TestPartition(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	batches := Partition(items, 2)
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[1]) != 2 || len(batches[2]) != 1 {
		t.Errorf("unexpected batch sizes: %v", batches)
	}
	if batches[2][0] != 5 {
		t.Errorf("last batch = %v, want [5]", batches[2])
	}
}

func TestPartitionEdgeCases(t *testing.T) {
	if got := Partition([]int(nil), 10); got != nil {
		t.Errorf("nil input should yield nil, got %v", got)
	}
	if got := Partition([]int{}, 10); got != nil {
		t.Errorf("empty input should yield nil, got %v", got)
	}

	// Non-positive size keeps everything in one batch.
	one := Partition([]int{1, 2, 3}, 0)
	if len(one) != 1 || len(one[0]) != 3 {
		t.Errorf("size 0 should yield one batch, got %v", one)
	}

	// Size larger than input.
	big := Partition([]int{1, 2}, 100)
	if len(big) != 1 || len(big[0]) != 2 {
		t.Errorf("oversized batch should yield one batch, got %v", big)
	}
}
