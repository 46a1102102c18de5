package feed

import "context"

// SeenSet is the set of item ids already shown to a consumer.
// The zero value is an empty set.
type SeenSet struct {
	ids map[string]struct{}
}

// NewSeenSet builds a set from ids. Blank ids are ignored.
func NewSeenSet(ids ...string) SeenSet {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		m[id] = struct{}{}
	}
	return SeenSet{ids: m}
}

// Has reports whether id has been seen.
func (s SeenSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of ids.
func (s SeenSet) Len() int { return len(s.ids) }

// SeenSetProvider supplies the seen-set for a consumer.
// Implementations report failures wrapped in ErrLookupFailed.
type SeenSetProvider interface {
	Load(ctx context.Context, consumerID string) (SeenSet, error)
}

// SeenSetFunc adapts a plain function to SeenSetProvider.
type SeenSetFunc func(ctx context.Context, consumerID string) (SeenSet, error)

// Load implements SeenSetProvider.
func (f SeenSetFunc) Load(ctx context.Context, consumerID string) (SeenSet, error) {
	return f(ctx, consumerID)
}
