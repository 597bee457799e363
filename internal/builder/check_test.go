package builder

import (
	"testing"

	"github.com/osresearch/linux-builder/internal/submodule"
)

func TestCheckReportsFetchedWithoutSideEffects(t *testing.T) {
	_, base, top := newRecipe(t)
	results, err := Check([]*submodule.Submodule{top, base})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.State != submodule.Fetched {
			t.Fatalf("%s: got state %v, want Fetched (source-less is trivially fetched; check must not build anything)", r.Fullname, r.State)
		}
		if r.OutHash == "" {
			t.Fatalf("%s: expected out_hash to be computed", r.Fullname)
		}
	}
}
