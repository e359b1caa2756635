package selector

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWeightedDistribution(t *testing.T) {
	w, err := NewWeighted([]float64{1, 1, 1})
	if err != nil {
		t.Fatalf("NewWeighted: %v", err)
	}
	if w.NumServers() != 3 {
		t.Fatalf("NumServers() = %d, want 3", w.NumServers())
	}

	counts := make([]int, 3)
	for i := 0; i < 1000; i++ {
		key := []byte{byte(i), byte(i >> 8)}
		counts[w.Select(key)]++
	}

	got := make(map[int]bool, len(counts))
	for i, c := range counts {
		got[i] = c > 0
	}
	want := map[int]bool{0: true, 1: true, 2: true}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("server received-keys mismatch (-want +got):\n%s", diff)
	}
}

func TestWeightedZeroAndNegativeFloorToOne(t *testing.T) {
	w, err := NewWeighted([]float64{0, -5, 2})
	if err != nil {
		t.Fatalf("NewWeighted: %v", err)
	}
	// weight 0 floors to 1, -5 floors to 1, 2 rounds to 2: table size 4.
	if len(w.table) != 4 {
		t.Fatalf("table size = %d, want 4", len(w.table))
	}
}

func TestWeightedRejectsEmpty(t *testing.T) {
	if _, err := NewWeighted(nil); err == nil {
		t.Fatal("expected error for empty weights")
	}
}

func TestWeightedRejectsOverBudget(t *testing.T) {
	weights := make([]float64, 2)
	weights[0] = 20000
	weights[1] = 20000
	if _, err := NewWeighted(weights); err == nil {
		t.Fatal("expected error for over-budget summed weight")
	}
}

func TestWeightedDeterministic(t *testing.T) {
	w, err := NewWeighted([]float64{1, 2, 3})
	if err != nil {
		t.Fatalf("NewWeighted: %v", err)
	}
	key := []byte("some-key")
	a := w.Select(key)
	b := w.Select(key)
	if a != b {
		t.Fatalf("Select not deterministic: %d != %d", a, b)
	}
}

func TestKetamaDeterministic(t *testing.T) {
	addrs := []string{"10.0.0.1:11211", "10.0.0.2:11211", "10.0.0.3:11211"}
	weights := []float64{1, 1, 1}
	k, err := NewKetama(addrs, weights, 100)
	if err != nil {
		t.Fatalf("NewKetama: %v", err)
	}
	if k.NumServers() != 3 {
		t.Fatalf("NumServers() = %d, want 3", k.NumServers())
	}

	key := []byte("user:42")
	a := k.Select(key)
	b := k.Select(key)
	if a != b {
		t.Fatalf("Select not deterministic: %d != %d", a, b)
	}
}

func TestKetamaStableUnderServerAddition(t *testing.T) {
	// Consistent hashing's defining property: adding a server should only
	// remap keys that move to the new server, not scramble everything.
	before := []string{"10.0.0.1:11211", "10.0.0.2:11211", "10.0.0.3:11211"}
	after := append(append([]string{}, before...), "10.0.0.4:11211")

	kBefore, err := NewKetama(before, []float64{1, 1, 1}, 100)
	if err != nil {
		t.Fatalf("NewKetama(before): %v", err)
	}
	kAfter, err := NewKetama(after, []float64{1, 1, 1, 1}, 100)
	if err != nil {
		t.Fatalf("NewKetama(after): %v", err)
	}

	moved := 0
	const n = 2000
	for i := 0; i < n; i++ {
		key := []byte{byte(i), byte(i >> 8), byte(i >> 16)}
		b := before[kBefore.Select(key)]
		a := after[kAfter.Select(key)]
		if a != b {
			moved++
		}
	}

	// Expect roughly 1/4 of keys to move to the new server; allow generous
	// slack since this is a statistical property, not an exact one.
	if moved > n/2 {
		t.Fatalf("too many keys moved on server addition: %d/%d", moved, n)
	}
}

func TestKetamaRejectsMismatchedLengths(t *testing.T) {
	if _, err := NewKetama([]string{"a:1"}, []float64{1, 2}, 10); err == nil {
		t.Fatal("expected error for mismatched addresses/weights")
	}
}

func TestKetamaRejectsZeroPoints(t *testing.T) {
	if _, err := NewKetama([]string{"a:1"}, []float64{1}, 0); err == nil {
		t.Fatal("expected error for zero points per unit weight")
	}
}
