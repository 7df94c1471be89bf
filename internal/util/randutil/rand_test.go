package randutil

import (
	"slices"
	"testing"
)

func TestShuffleIsPermutation(t *testing.T) {
	r := NewSeeded(42)
	for n := range 40 {
		items := make([]int, n)
		for i := range items {
			items[i] = i
		}
		Shuffle(r, items)
		sorted := slices.Clone(items)
		slices.Sort(sorted)
		for i, v := range sorted {
			if v != i {
				t.Fatalf("shuffle lost elements: %v", items)
			}
		}
	}
}

func TestShuffleUniform(t *testing.T) {
	r := NewSeeded(7)
	const iters = 60_000
	counts := make(map[[3]int]int)
	for range iters {
		items := []int{0, 1, 2}
		Shuffle(r, items)
		counts[[3]int(items)]++
	}
	if len(counts) != 6 {
		t.Fatalf("expected 6 permutations, got %v", len(counts))
	}
	for perm, c := range counts {
		if c < iters/6*9/10 || c > iters/6*11/10 {
			t.Fatalf("permutation %v is skewed: %v", perm, c)
		}
	}
}

func TestPick(t *testing.T) {
	r := NewSeeded(1)
	items := []string{"a", "b", "c"}
	seen := make(map[string]bool)
	for range 300 {
		seen[Pick(r, items)] = true
	}
	if len(seen) != len(items) {
		t.Fatalf("not all items picked: %v", seen)
	}
}
