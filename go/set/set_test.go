package set

import "testing"

func TestUnionDifference(t *testing.T) {
	var cases = []struct {
		desc     string
		a, b     []string
		union    []string
		diffAB   []string
		diffBA   []string
	}{
		{
			desc: "disjoint",
			a:    []string{"x", "y"},
			b:    []string{"z"},
			union: []string{"x", "y", "z"},
			diffAB: []string{"x", "y"},
			diffBA: []string{"z"},
		},
		{
			desc:   "overlap",
			a:      []string{"x", "y"},
			b:      []string{"y", "z"},
			union:  []string{"x", "y", "z"},
			diffAB: []string{"x"},
			diffBA: []string{"z"},
		},
		{
			desc:   "empty a",
			a:      []string{},
			b:      []string{"z"},
			union:  []string{"z"},
			diffAB: nil,
			diffBA: []string{"z"},
		},
	}
	for _, c := range cases {
		a, b := FromSlice(c.a), FromSlice(c.b)
		if got := a.Union(b).Sorted(); !equalSlices(got, c.union) {
			t.Errorf("[%s] union: got %v, want %v", c.desc, got, c.union)
		}
		if got := a.Difference(b).Sorted(); !equalSlices(got, c.diffAB) {
			t.Errorf("[%s] a-b: got %v, want %v", c.desc, got, c.diffAB)
		}
		if got := b.Difference(a).Sorted(); !equalSlices(got, c.diffBA) {
			t.Errorf("[%s] b-a: got %v, want %v", c.desc, got, c.diffBA)
		}
	}
}

func TestEquals(t *testing.T) {
	a := FromSlice([]string{"x", "y"})
	b := FromSlice([]string{"y", "x"})
	if !a.Equals(b) {
		t.Fatalf("expected equal sets")
	}
	c := FromSlice([]string{"y"})
	if a.Equals(c) {
		t.Fatalf("expected unequal sets")
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
