package feed

import "context"

// Item is anything with a stable unique identifier.
type Item interface {
	FeedID() string
}

// Query describes one batch request against a Source.
type Query struct {
	Table  string
	Sort   SortConfig
	Cursor *Cursor
	Limit  int
}

// Batch is one round-trip's worth of raw, unfiltered items.
type Batch[T Item] struct {
	Items []T
	// Next resumes strictly after the last item in Items.
	// It is nil once the source has nothing after this batch.
	Next *Cursor
}

// Source is a sorted, cursor-paginated, read-only data source.
//
// Requirements:
//   - Items are returned in the exact order defined by Query.Sort
//   - Next is derived from the last item, or nil on exhaustion
//   - A cursor minted under another sort config fails with ErrInvalidCursor
//   - Transport/database failures are reported as ErrSourceUnavailable
type Source[T Item] interface {
	Fetch(ctx context.Context, q Query) (Batch[T], error)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc[T Item] func(ctx context.Context, q Query) (Batch[T], error)

// Fetch implements Source.
func (f SourceFunc[T]) Fetch(ctx context.Context, q Query) (Batch[T], error) {
	return f(ctx, q)
}

// Positioner is implemented by sources that can mint a cursor for an
// arbitrary item they returned. The assembler uses it to resume right after
// the last item handed to the caller when a batch overshoots the page.
type Positioner[T Item] interface {
	CursorAt(sort SortConfig, item T) (Cursor, error)
}
