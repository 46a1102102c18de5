package listing

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
)

type columnKind uint8

const (
	kindText columnKind = iota
	kindInt
	kindTime
)

// sortable lists the property columns a feed may be ordered by.
var sortable = map[string]columnKind{
	"created_at":   kindTime,
	"monthly_rent": kindInt,
	"bedrooms":     kindInt,
	"title":        kindText,
	"id":           kindText,
}

// uniqueColumn breaks ties so that keyset pagination never loops or skips.
const uniqueColumn = "id"

// DefaultSort is newest first.
var DefaultSort = feed.MustSortConfig(
	feed.SortField{Field: "created_at", Direction: feed.Desc},
	feed.SortField{Field: uniqueColumn, Direction: feed.Desc},
)

// NormalizeSort rejects unknown columns and appends the id tiebreaker
// (in the direction of the last field) when it is missing.
func NormalizeSort(sort feed.SortConfig) (feed.SortConfig, error) {
	if sort.IsZero() {
		return DefaultSort, nil
	}
	for _, f := range sort.Fields() {
		if _, ok := sortable[f.Field]; !ok {
			return feed.SortConfig{}, feed.OpError{Op: "listing.NormalizeSort", Kind: feed.ErrInvalidSort, Msg: "unsupported field " + f.Field}
		}
	}
	if sort.Has(uniqueColumn) {
		return sort, nil
	}
	return sort.With(feed.SortField{Field: uniqueColumn, Direction: sort.Last().Direction})
}

func checkQuery(q feed.Query) error {
	if q.Table != "" && q.Table != TableName {
		return fmt.Errorf("%w: unknown table %q", ErrInvalidInput, q.Table)
	}
	if q.Limit < 1 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidInput)
	}
	if q.Sort.IsZero() || !q.Sort.Has(uniqueColumn) {
		return feed.OpError{Op: "listing.Fetch", Kind: feed.ErrInvalidSort, Msg: "sort must include " + uniqueColumn}
	}
	for _, f := range q.Sort.Fields() {
		if _, ok := sortable[f.Field]; !ok {
			return feed.OpError{Op: "listing.Fetch", Kind: feed.ErrInvalidSort, Msg: "unsupported field " + f.Field}
		}
	}
	if !q.Cursor.Matches(q.Sort) {
		return feed.OpError{Op: "listing.Fetch", Kind: feed.ErrInvalidCursor, Msg: "cursor was issued for a different sort"}
	}
	return nil
}

// cursorAt snapshots p's sort-key values.
func cursorAt(sort feed.SortConfig, p Property) (feed.Cursor, error) {
	fields := sort.Fields()
	vals := make([]string, len(fields))
	for i, f := range fields {
		v, err := encodeKey(p, f.Field)
		if err != nil {
			return feed.Cursor{}, err
		}
		vals[i] = v
	}
	return feed.Cursor{Sort: sort.Fingerprint(), Values: vals}, nil
}

func encodeKey(p Property, field string) (string, error) {
	switch field {
	case "created_at":
		return p.CreatedAt.UTC().Format(time.RFC3339Nano), nil
	case "monthly_rent":
		return strconv.FormatInt(p.MonthlyRent, 10), nil
	case "bedrooms":
		return strconv.Itoa(p.Bedrooms), nil
	case "title":
		return p.Title, nil
	case "id":
		return p.ID, nil
	}
	return "", feed.OpError{Op: "listing.encodeKey", Kind: feed.ErrInvalidSort, Msg: "unsupported field " + field}
}

// decodeKey parses a cursor value into the Go type of its column.
func decodeKey(field, v string) (any, error) {
	kind, ok := sortable[field]
	if !ok {
		return nil, feed.OpError{Op: "listing.decodeKey", Kind: feed.ErrInvalidCursor, Msg: "unsupported field " + field}
	}
	switch kind {
	case kindTime:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, feed.OpError{Op: "listing.decodeKey", Kind: feed.ErrInvalidCursor, Msg: "bad " + field}
		}
		return t.UTC(), nil
	case kindInt:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, feed.OpError{Op: "listing.decodeKey", Kind: feed.ErrInvalidCursor, Msg: "bad " + field}
		}
		return n, nil
	default:
		return v, nil
	}
}

func decodeCursor(sort feed.SortConfig, cur *feed.Cursor) ([]any, error) {
	if cur == nil {
		return nil, nil
	}
	fields := sort.Fields()
	out := make([]any, len(fields))
	for i, f := range fields {
		v, err := decodeKey(f.Field, cur.Values[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// compareKey orders p's value for field against a decoded key, ascending.
func compareKey(p Property, field string, key any) int {
	switch field {
	case "created_at":
		return p.CreatedAt.Compare(key.(time.Time))
	case "monthly_rent":
		return cmp.Compare(p.MonthlyRent, key.(int64))
	case "bedrooms":
		return cmp.Compare(int64(p.Bedrooms), key.(int64))
	case "title":
		return strings.Compare(p.Title, key.(string))
	case "id":
		return strings.Compare(p.ID, key.(string))
	}
	return 0
}

// compareToCursor reports where p sits relative to the cursor position in
// sort order: >0 means p comes strictly after it.
func compareToCursor(sort feed.SortConfig, p Property, keys []any) int {
	for i, f := range sort.Fields() {
		c := compareKey(p, f.Field, keys[i])
		if f.Direction == feed.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareProperties(sort feed.SortConfig, a, b Property) int {
	for _, f := range sort.Fields() {
		var c int
		switch f.Field {
		case "created_at":
			c = a.CreatedAt.Compare(b.CreatedAt)
		case "monthly_rent":
			c = cmp.Compare(a.MonthlyRent, b.MonthlyRent)
		case "bedrooms":
			c = cmp.Compare(a.Bedrooms, b.Bedrooms)
		case "title":
			c = strings.Compare(a.Title, b.Title)
		case "id":
			c = strings.Compare(a.ID, b.ID)
		}
		if f.Direction == feed.Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// keysetPredicate renders "strictly after the cursor" for mixed directions as
// an OR-chain:
//
//	(a > $1) OR (a = $1 AND b < $2) OR (a = $1 AND b = $2 AND c > $3)
//
// Placeholders start at $firstArg, one per sort field, each reused across the chain.
func keysetPredicate(sort feed.SortConfig, firstArg int) string {
	fields := sort.Fields()
	ph := func(i int) string { return "$" + strconv.Itoa(firstArg+i) }

	ors := make([]string, 0, len(fields))
	for i, f := range fields {
		ands := make([]string, 0, i+1)
		for j := 0; j < i; j++ {
			ands = append(ands, fields[j].Field+" = "+ph(j))
		}
		op := ">"
		if f.Direction == feed.Desc {
			op = "<"
		}
		ands = append(ands, f.Field+" "+op+" "+ph(i))
		ors = append(ors, "("+strings.Join(ands, " AND ")+")")
	}
	return "(" + strings.Join(ors, " OR ") + ")"
}

func orderByClause(sort feed.SortConfig) string {
	fields := sort.Fields()
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.Field + " " + strings.ToUpper(string(f.Direction))
	}
	return strings.Join(parts, ", ")
}
