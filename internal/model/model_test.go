package model

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRecordAdvance(t *testing.T) {
	published := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("CST", 8*3600))
	wantPublished := published.UTC()

	r := &Record{LastVideoID: "A", LastShortsID: "S1"}
	r.Advance(Item{ID: "S2", Category: CategoryShorts, PublishedAt: &published})

	want := &Record{LastVideoID: "A", LastShortsID: "S2", LastShortsAt: &wantPublished}
	if diff := cmp.Diff(want, r); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	r.Advance(Item{ID: "B", Category: CategoryVideo})
	if diff := cmp.Diff(Cursor{ID: "B"}, r.Cursor(CategoryVideo)); diff != "" {
		t.Errorf("video cursor mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Cursor{ID: "S2", PublishedAt: &wantPublished}, r.Cursor(CategoryShorts)); diff != "" {
		t.Errorf("shorts cursor mismatch (-want +got):\n%s", diff)
	}
}

func TestCategoryLabel(t *testing.T) {
	tests := []struct {
		cat  Category
		want string
	}{
		{CategoryVideo, "Video"},
		{CategoryShorts, "Shorts"},
		{Category("other"), "Video"},
	}
	for _, tt := range tests {
		if got := tt.cat.Label(); got != tt.want {
			t.Errorf("%q.Label() = %q, want %q", tt.cat, got, tt.want)
		}
	}
}
