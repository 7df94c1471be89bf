package sliceutil

import (
	"slices"
	"strconv"
	"testing"
)

func TestFunctools(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	if got := Map(items, strconv.Itoa); !slices.Equal(got, []string{"1", "2", "3", "4", "5"}) {
		t.Fatalf("bad map: %v", got)
	}
	even := func(x int) bool { return x%2 == 0 }
	if got := Filter(items, even); !slices.Equal(got, []int{2, 4}) {
		t.Fatalf("bad filter: %v", got)
	}
	yes, no := Partition(items, even)
	if !slices.Equal(yes, []int{2, 4}) || !slices.Equal(no, []int{1, 3, 5}) {
		t.Fatalf("bad partition: %v %v", yes, no)
	}
	got := FilterMap(items, func(x int) (int, bool) { return x * x, x > 3 })
	if !slices.Equal(got, []int{16, 25}) {
		t.Fatalf("bad filter map: %v", got)
	}
}
