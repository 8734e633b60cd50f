package engine

import "testing"

func TestValidDOIFormat(t *testing.T) {
	cases := []struct {
		doi  string
		want bool
	}{
		{"10.1038/nphys1170", true},
		{"10.1000/xyz123", true},
		{"not-a-doi", false},
		{"", false},
	}
	for _, c := range cases {
		if got := validDOIFormat(c.doi); got != c.want {
			t.Errorf("validDOIFormat(%q) = %v, want %v", c.doi, got, c.want)
		}
	}
}

func TestValidArxivIDFormat(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"1706.03762", true},
		{"1706.03762v2", true},
		{"cs.LG/0501001", true},
		{"not-an-id", false},
	}
	for _, c := range cases {
		if got := validArxivIDFormat(c.id); got != c.want {
			t.Errorf("validArxivIDFormat(%q) = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestBuildDOIInfoNilWhenNoDOI(t *testing.T) {
	if info := buildDOIInfo("", nil); info != nil {
		t.Fatalf("expected nil DOIInfo for empty DOI, got %+v", info)
	}
}

func TestBuildDOIInfoMatchedFromBackendResult(t *testing.T) {
	info := buildDOIInfo("10.1038/nphys1170", &DbResult{DbName: "DOI", Status: DbMatch})
	if info == nil || !info.Valid || !info.Matched {
		t.Fatalf("expected valid, matched DOIInfo, got %+v", info)
	}
}

func TestBuildArxivInfoUnmatchedWithoutBackendResult(t *testing.T) {
	info := buildArxivInfo("1706.03762", nil)
	if info == nil || !info.Valid || info.Matched {
		t.Fatalf("expected valid, unmatched ArxivInfo, got %+v", info)
	}
}
