package listing

import (
	"errors"
	"testing"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
)

func TestNormalizeSort(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "created_at:desc", want: "created_at:desc,id:desc"},
		{in: "monthly_rent:asc", want: "monthly_rent:asc,id:asc"},
		{in: "bedrooms:desc,monthly_rent:asc", want: "bedrooms:desc,monthly_rent:asc,id:asc"},
		{in: "id:asc", want: "id:asc"},
		{in: "title,id:desc", want: "title:asc,id:desc"},
		{in: "caretaker_id", wantErr: feed.ErrInvalidSort},
	}

	for _, tc := range cases {
		sc, err := feed.ParseSortConfig(tc.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.in, err)
		}
		got, err := NormalizeSort(sc)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("NormalizeSort(%q): expected %v, got %v", tc.in, tc.wantErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizeSort(%q): %v", tc.in, err)
		}
		if got.Fingerprint() != tc.want {
			t.Fatalf("NormalizeSort(%q)=%q want=%q", tc.in, got.Fingerprint(), tc.want)
		}
	}

	got, err := NormalizeSort(feed.SortConfig{})
	if err != nil || got.Fingerprint() != DefaultSort.Fingerprint() {
		t.Fatalf("zero sort should normalize to default, got %q, %v", got.Fingerprint(), err)
	}
}

func TestKeysetPredicate(t *testing.T) {
	t.Parallel()

	sc := feed.MustSortConfig(
		feed.SortField{Field: "monthly_rent", Direction: feed.Asc},
		feed.SortField{Field: "created_at", Direction: feed.Desc},
		feed.SortField{Field: "id", Direction: feed.Asc},
	)

	got := keysetPredicate(sc, 2)
	want := "((monthly_rent > $2) OR (monthly_rent = $2 AND created_at < $3) OR (monthly_rent = $2 AND created_at = $3 AND id > $4))"
	if got != want {
		t.Fatalf("keysetPredicate=\n%s\nwant\n%s", got, want)
	}

	if got := orderByClause(sc); got != "monthly_rent ASC, created_at DESC, id ASC" {
		t.Fatalf("orderByClause=%q", got)
	}
}

func TestDecodeCursor_BadValues(t *testing.T) {
	t.Parallel()

	cases := []*feed.Cursor{
		{Sort: DefaultSort.Fingerprint(), Values: []string{"yesterday", "01HX"}},
		{Sort: "monthly_rent:asc,id:asc", Values: []string{"12.5", "01HX"}},
	}
	sorts := []feed.SortConfig{
		DefaultSort,
		feed.MustSortConfig(feed.SortField{Field: "monthly_rent", Direction: feed.Asc}, feed.SortField{Field: "id", Direction: feed.Asc}),
	}

	for i, cur := range cases {
		if _, err := decodeCursor(sorts[i], cur); !feed.IsInvalidCursor(err) {
			t.Fatalf("case %d: expected ErrInvalidCursor, got %v", i, err)
		}
	}
}
