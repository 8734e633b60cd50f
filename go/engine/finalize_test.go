package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergeDbResultsPreservesLocalThenRemoteOrder(t *testing.T) {
	local := []DbResult{{DbName: "DBLP", Status: DbNoMatch}}
	remote := []DbResult{{DbName: "CrossRef", Status: DbMatch}, {DbName: "OpenAlex", Status: DbSkipped}}

	got := mergeDbResults(local, remote)
	want := []DbResult{
		{DbName: "DBLP", Status: DbNoMatch},
		{DbName: "CrossRef", Status: DbMatch},
		{DbName: "OpenAlex", Status: DbSkipped},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeDbResults mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeFailedDbsDedupesAndSorts(t *testing.T) {
	got := mergeFailedDbs([]string{"OpenAlex", "CrossRef"}, []string{"CrossRef", "arXiv"})
	want := []string{"CrossRef", "OpenAlex", "arXiv"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mergeFailedDbs mismatch (-want +got):\n%s", diff)
	}
}

func TestFindDbResultReturnsNilWhenAbsent(t *testing.T) {
	results := []DbResult{{DbName: "DBLP", Status: DbMatch}}
	if got := findDbResult(results, "CrossRef"); got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
