package ranktree

import (
	"math/rand"
	"sort"
	"testing"
)

func TestInsertRankOf(t *testing.T) {
	tree := New()

	entries := []Entry{
		{Score: 100, CustomerID: 1},
		{Score: 300, CustomerID: 2},
		{Score: 200, CustomerID: 3},
	}
	for _, e := range entries {
		if !tree.Insert(e) {
			t.Fatalf("Insert(%+v) = false, want true", e)
		}
	}

	if got := tree.Size(); got != 3 {
		t.Fatalf("Size() = %d, want 3", got)
	}

	want := map[Entry]int64{
		{Score: 300, CustomerID: 2}: 1,
		{Score: 200, CustomerID: 3}: 2,
		{Score: 100, CustomerID: 1}: 3,
	}
	for e, wantRank := range want {
		rank, ok := tree.RankOf(e)
		if !ok {
			t.Fatalf("RankOf(%+v) not found", e)
		}
		if rank != wantRank {
			t.Errorf("RankOf(%+v) = %d, want %d", e, rank, wantRank)
		}
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	tree := New()
	e := Entry{Score: 500, CustomerID: 7}
	if !tree.Insert(e) {
		t.Fatalf("first Insert = false, want true")
	}
	if tree.Insert(e) {
		t.Fatalf("second Insert = true, want false (duplicate)")
	}
	if tree.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", tree.Size())
	}
}

func TestTieBrokenByCustomerID(t *testing.T) {
	tree := New()
	tree.Insert(Entry{Score: 100, CustomerID: 5})
	tree.Insert(Entry{Score: 100, CustomerID: 2})
	tree.Insert(Entry{Score: 100, CustomerID: 9})

	got := tree.RangeByRank(1, 3)
	want := []int64{2, 5, 9}
	if len(got) != len(want) {
		t.Fatalf("RangeByRank returned %d entries, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.CustomerID != want[i] {
			t.Errorf("rank %d: customerId = %d, want %d", i+1, e.CustomerID, want[i])
		}
	}
}

func TestRemove(t *testing.T) {
	tree := New()
	e1 := Entry{Score: 100, CustomerID: 1}
	e2 := Entry{Score: 200, CustomerID: 2}
	tree.Insert(e1)
	tree.Insert(e2)

	if !tree.Remove(e1) {
		t.Fatalf("Remove(%+v) = false, want true", e1)
	}
	if tree.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", tree.Size())
	}
	if _, ok := tree.RankOf(e1); ok {
		t.Errorf("RankOf(%+v) found after Remove", e1)
	}
	if removedAgain := tree.Remove(e1); removedAgain {
		t.Errorf("Remove(%+v) second time = true, want false", e1)
	}

	rank, ok := tree.RankOf(e2)
	if !ok || rank != 1 {
		t.Errorf("RankOf(%+v) = (%d, %v), want (1, true)", e2, rank, ok)
	}
}

func TestAtRank(t *testing.T) {
	tree := New()
	for i := int64(1); i <= 10; i++ {
		tree.Insert(Entry{Score: i * 10, CustomerID: i})
	}

	e, ok := tree.AtRank(1)
	if !ok || e.Score != 100 {
		t.Fatalf("AtRank(1) = (%+v, %v), want highest score", e, ok)
	}

	e, ok = tree.AtRank(10)
	if !ok || e.Score != 10 {
		t.Fatalf("AtRank(10) = (%+v, %v), want lowest score", e, ok)
	}

	if _, ok := tree.AtRank(0); ok {
		t.Errorf("AtRank(0) found, want not found")
	}
	if _, ok := tree.AtRank(11); ok {
		t.Errorf("AtRank(11) found, want not found")
	}
}

func TestRangeByRankBounds(t *testing.T) {
	tree := New()
	for i := int64(1); i <= 5; i++ {
		tree.Insert(Entry{Score: i, CustomerID: i})
	}

	if got := tree.RangeByRank(0, 3); got != nil {
		t.Errorf("RangeByRank(0, 3) = %v, want nil", got)
	}
	if got := tree.RangeByRank(3, 1); got != nil {
		t.Errorf("RangeByRank(3, 1) = %v, want nil", got)
	}
	if got := tree.RangeByRank(1, 6); got != nil {
		t.Errorf("RangeByRank(1, 6) = %v, want nil", got)
	}

	got := tree.RangeByRank(2, 4)
	if len(got) != 3 {
		t.Fatalf("RangeByRank(2, 4) returned %d entries, want 3", len(got))
	}
}

func TestRangeByValue(t *testing.T) {
	tree := New()
	for i := int64(1); i <= 5; i++ {
		tree.Insert(Entry{Score: i * 100, CustomerID: i})
	}

	// Score descending, so "highest score first" means lo has the larger
	// score and hi the smaller one under Entry's Less ordering.
	lo := Entry{Score: 400, CustomerID: 0}
	hi := Entry{Score: 200, CustomerID: 1 << 62}
	got := tree.RangeByValue(lo, hi)

	wantScores := []int64{400, 300, 200}
	if len(got) != len(wantScores) {
		t.Fatalf("RangeByValue returned %d entries, want %d", len(got), len(wantScores))
	}
	for i, e := range got {
		if e.Score != wantScores[i] {
			t.Errorf("entry %d: score = %d, want %d", i, e.Score, wantScores[i])
		}
	}
}

// TestRankConsistency inserts and removes a large randomized population
// and checks every entry's rank against an independently sorted slice
// after each batch, catching span-bookkeeping bugs that only surface at
// scale or after a mix of inserts and removals.
func TestRankConsistency(t *testing.T) {
	tree := New()
	rng := rand.New(rand.NewSource(42))

	var live []Entry
	for i := 0; i < 2000; i++ {
		e := Entry{Score: rng.Int63n(1_000_000), CustomerID: int64(i)}
		if tree.Insert(e) {
			live = append(live, e)
		}
	}

	checkRanks(t, tree, live)

	// Remove a random third of the entries and check again.
	rng.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })
	removed := live[:len(live)/3]
	live = live[len(live)/3:]
	for _, e := range removed {
		if !tree.Remove(e) {
			t.Fatalf("Remove(%+v) = false, want true", e)
		}
	}

	checkRanks(t, tree, live)
}

func checkRanks(t *testing.T, tree *Tree, live []Entry) {
	t.Helper()

	sorted := make([]Entry, len(live))
	copy(sorted, live)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Less(sorted[j]) })

	if tree.Size() != int64(len(sorted)) {
		t.Fatalf("Size() = %d, want %d", tree.Size(), len(sorted))
	}

	for i, e := range sorted {
		wantRank := int64(i + 1)
		rank, ok := tree.RankOf(e)
		if !ok {
			t.Fatalf("RankOf(%+v) not found, want rank %d", e, wantRank)
		}
		if rank != wantRank {
			t.Fatalf("RankOf(%+v) = %d, want %d", e, rank, wantRank)
		}

		got, ok := tree.AtRank(wantRank)
		if !ok || got != e {
			t.Fatalf("AtRank(%d) = (%+v, %v), want %+v", wantRank, got, ok, e)
		}
	}
}
