package table

import (
	"testing"

	"github.com/jamiealquiza/lxucache/lxu"
)

func identityUpdate(prev *lxu.Record, _, _ int64) lxu.Record {
	if prev != nil {
		return *prev
	}
	return lxu.NewRecord(5, 0)
}

func noopFetch(int64, int64) {}

func allPass(int64) bool { return true }

// TestBasicAdmitAndReuse admits a batch with repeated IDs and checks
// slots are assigned in allocation order, offset-shifted, with repeats
// reporting their first slot.
func TestBasicAdmitAndReuse(t *testing.T) {
	nt := NewNaive(16, 3)
	globals := []int64{100, 101, 100, 102, 101}
	slots := make([]int64, len(globals))

	n := nt.Transform(globals, slots, allPass, identityUpdate, noopFetch)
	if n != 5 {
		t.Fatalf("processed = %d, want 5", n)
	}

	want := []int64{3, 4, 3, 5, 4}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slots[%d] = %d, want %d", i, slots[i], want[i])
		}
	}
}

// TestFilterSkipsOddGlobals checks that positions holding odd global
// IDs are filtered out: neither counted nor written.
func TestFilterSkipsOddGlobals(t *testing.T) {
	nt := NewNaive(16, 3)
	globals := []int64{100, 101, 100, 102, 101}
	slots := make([]int64, len(globals))
	even := func(g int64) bool { return g%2 == 0 }

	n := nt.Transform(globals, slots, even, identityUpdate, noopFetch)
	if n != 3 {
		t.Fatalf("processed = %d, want 3", n)
	}
	if slots[0] != 3 || slots[2] != 3 || slots[3] != 4 {
		t.Fatalf("slots = %v, want [3 _ 3 4 _]", slots)
	}
	if slots[1] != 0 || slots[4] != 0 {
		t.Fatalf("filtered positions must be left unwritten, got %v", slots)
	}
}

// TestFullTableStopsBatch checks a batch larger than capacity stops at
// the full table and reports the partial count.
func TestFullTableStopsBatch(t *testing.T) {
	nt := NewNaive(4, 3)
	globals := []int64{100, 101, 102, 103, 104}
	slots := make([]int64, len(globals))

	n := nt.Transform(globals, slots, allPass, identityUpdate, noopFetch)
	if n != 4 {
		t.Fatalf("processed = %d, want 4", n)
	}
	want := []int64{3, 4, 5, 6}
	for i := 0; i < 4; i++ {
		if slots[i] != want[i] {
			t.Fatalf("slots[%d] = %d, want %d", i, slots[i], want[i])
		}
	}
}

// TestEvictAndReadmitCompacts checks freed slots are reused densely
// from the low end before the cursor advances further.
func TestEvictAndReadmitCompacts(t *testing.T) {
	nt := NewNaive(4, 3)
	first := []int64{100, 101, 102, 103, 104}
	slots := make([]int64, len(first))
	nt.Transform(first, slots, allPass, identityUpdate, noopFetch)

	nt.Evict([]int64{100, 102})

	second := []int64{101, 102, 103, 104}
	slots2 := make([]int64, len(second))
	n := nt.Transform(second, slots2, allPass, identityUpdate, noopFetch)
	if n != 4 {
		t.Fatalf("processed = %d, want 4", n)
	}
	want := []int64{4, 3, 6, 5}
	for i := range want {
		if slots2[i] != want[i] {
			t.Fatalf("slots2[%d] = %d, want %d", i, slots2[i], want[i])
		}
	}
}

func TestForEachYieldsLiveEntriesOnce(t *testing.T) {
	nt := NewNaive(8, 0)
	globals := []int64{1, 2, 3}
	slots := make([]int64, len(globals))
	nt.Transform(globals, slots, allPass, identityUpdate, noopFetch)

	seen := make(map[int64]bool)
	nt.ForEach(func(global, slot int64, rec lxu.Record) {
		seen[global] = true
	})
	for _, g := range globals {
		if !seen[g] {
			t.Fatalf("ForEach missed global %d", g)
		}
	}
	if len(seen) != 3 {
		t.Fatalf("ForEach yielded %d distinct entries, want 3", len(seen))
	}
}

func TestIdempotentOnSteadyState(t *testing.T) {
	nt := NewNaive(8, 0)
	globals := []int64{5, 6, 7}
	slots1 := make([]int64, len(globals))
	nt.Transform(globals, slots1, allPass, identityUpdate, noopFetch)

	slots2 := make([]int64, len(globals))
	nt.Transform(globals, slots2, allPass, identityUpdate, noopFetch)

	for i := range slots1 {
		if slots1[i] != slots2[i] {
			t.Fatalf("slots2[%d] = %d, want %d (idempotent)", i, slots2[i], slots1[i])
		}
	}
}
