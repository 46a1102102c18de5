package feed

import (
	"errors"
	"testing"
)

func TestParseSortConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "created_at:desc,id:desc", want: "created_at:desc,id:desc"},
		{in: " monthly_rent , id:DESC ", want: "monthly_rent:asc,id:desc"},
		{in: "Title:asc", want: "title:asc"},
		{in: "", wantErr: true},
		{in: "id:sideways", wantErr: true},
		{in: "id,id", wantErr: true},
		{in: "id;drop", wantErr: true},
		{in: "created_at:desc,", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseSortConfig(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrInvalidSort) {
				t.Fatalf("ParseSortConfig(%q): expected ErrInvalidSort, got %v", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSortConfig(%q): %v", tc.in, err)
		}
		if got.Fingerprint() != tc.want {
			t.Fatalf("ParseSortConfig(%q)=%q want=%q", tc.in, got.Fingerprint(), tc.want)
		}
	}
}

func TestSortConfig_WithAndAccessors(t *testing.T) {
	t.Parallel()

	base := MustSortConfig(SortField{Field: "created_at", Direction: Desc})
	full, err := base.With(SortField{Field: "id", Direction: Desc})
	if err != nil {
		t.Fatalf("with: %v", err)
	}
	if base.Len() != 1 || full.Len() != 2 {
		t.Fatalf("With must not mutate the receiver: base=%d full=%d", base.Len(), full.Len())
	}
	if !full.Has("id") || full.Has("title") {
		t.Fatalf("Has mismatch for %s", full)
	}
	if full.Last().Field != "id" {
		t.Fatalf("Last()=%v", full.Last())
	}

	fields := full.Fields()
	fields[0].Field = "mutated"
	if full.Fields()[0].Field != "created_at" {
		t.Fatalf("Fields must return a copy")
	}

	if _, err := full.With(SortField{Field: "id", Direction: Asc}); !errors.Is(err, ErrInvalidSort) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	if !(SortConfig{}).IsZero() {
		t.Fatalf("zero config must report IsZero")
	}
}
