package intervals

import (
	"math/rand"
	"reflect"
	"testing"
)

func TestMerge_Empty(t *testing.T) {
	got := Merge(nil)
	want := []Interval{{Start: 0, End: 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge(nil) = %v, want %v", got, want)
	}
	if Covered(got) != 0 {
		t.Fatalf("Covered of degenerate set = %d, want 0", Covered(got))
	}
}

func TestMerge_Overlapping(t *testing.T) {
	got := Merge([]Interval{{10, 51}, {40, 60}, {100, 120}})
	want := []Interval{{10, 60}, {100, 120}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMerge_Touching(t *testing.T) {
	// Windows that touch at a boundary hour collapse into one interval.
	got := Merge([]Interval{{0, 5}, {5, 9}})
	want := []Interval{{0, 9}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMerge_Contained(t *testing.T) {
	got := Merge([]Interval{{0, 100}, {20, 30}, {40, 50}})
	want := []Interval{{0, 100}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMerge_Unsorted(t *testing.T) {
	got := Merge([]Interval{{100, 120}, {0, 5}, {3, 8}})
	want := []Interval{{0, 8}, {100, 120}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	in := []Interval{{100, 120}, {0, 5}}
	Merge(in)
	want := []Interval{{100, 120}, {0, 5}}
	if !reflect.DeepEqual(in, want) {
		t.Fatalf("Merge mutated its input: %v", in)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(10)
		windows := make([]Interval, 0, n)
		for i := 0; i < n; i++ {
			start := rng.Intn(500)
			windows = append(windows, Interval{Start: start, End: start + rng.Intn(100)})
		}
		once := Merge(windows)
		twice := Merge(once)
		if !reflect.DeepEqual(once, twice) {
			t.Fatalf("merge not idempotent for %v: %v != %v", windows, once, twice)
		}
	}
}

func TestSet_CoverageConservation(t *testing.T) {
	// A point is inside some raw window iff it is inside the merged set.
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 100; trial++ {
		n := 1 + rng.Intn(8)
		windows := make([]Interval, 0, n)
		for i := 0; i < n; i++ {
			start := rng.Intn(300)
			windows = append(windows, Interval{Start: start, End: start + rng.Intn(80)})
		}
		set := NewSet(windows)
		for point := 0; point <= 400; point++ {
			raw := false
			for _, w := range windows {
				if w.Contains(point) {
					raw = true
					break
				}
			}
			if got := set.Contains(point); got != raw {
				t.Fatalf("Contains(%d) = %v, raw windows say %v (windows %v)", point, got, raw, windows)
			}
		}
	}
}

func TestSet_Covered(t *testing.T) {
	set := NewSet([]Interval{{10, 51}, {40, 60}})
	if got := set.Covered(); got != 50 {
		t.Fatalf("Covered = %d, want 50", got)
	}
}
