package listing

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/ids"
)

const memMaxProperties = 50_000

// MemoryStore is a dev-only fallback when DB is not configured.
// It supports:
//   - Create/Get
//   - Fetch: keyset paging over published properties with the same
//     semantics as PostgresStore (for CI/smoke determinism)
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]Property
	order []string // insertion order, used to bound memory
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]Property),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// Create stores a new property.
func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Property, error) {
	if err := ctx.Err(); err != nil {
		return Property{}, err
	}
	in, err := in.normalize()
	if err != nil {
		return Property{}, err
	}

	id, err := ids.NewULID(in.Now)
	if err != nil {
		return Property{}, err
	}

	p := Property{
		ID:          id,
		Title:       in.Title,
		City:        in.City,
		MonthlyRent: in.MonthlyRent,
		Bedrooms:    in.Bedrooms,
		Status:      in.Status,
		CaretakerID: in.CaretakerID,
		CreatedAt:   in.Now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID[p.ID] = p
	s.order = append(s.order, p.ID)

	// Bound memory to avoid unbounded growth in dev.
	if len(s.order) > memMaxProperties {
		drop := s.order[:len(s.order)-memMaxProperties]
		for _, old := range drop {
			delete(s.byID, old)
		}
		s.order = append([]string(nil), s.order[len(drop):]...)
	}

	return p, nil
}

// Get returns a property by id.
func (s *MemoryStore) Get(ctx context.Context, id string) (Property, error) {
	if err := ctx.Err(); err != nil {
		return Property{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Property{}, fmt.Errorf("%w: missing id", ErrInvalidInput)
	}

	s.mu.RLock()
	p, ok := s.byID[id]
	s.mu.RUnlock()

	if !ok {
		return Property{}, ErrNotFound
	}
	return p, nil
}

// CursorAt implements feed.Positioner.
func (s *MemoryStore) CursorAt(sort feed.SortConfig, p Property) (feed.Cursor, error) {
	return cursorAt(sort, p)
}

// Fetch returns published properties in q.Sort order, strictly after q.Cursor.
func (s *MemoryStore) Fetch(ctx context.Context, q feed.Query) (feed.Batch[Property], error) {
	if err := ctx.Err(); err != nil {
		return feed.Batch[Property]{}, fmt.Errorf("%w: %w", feed.ErrSourceUnavailable, err)
	}
	if err := checkQuery(q); err != nil {
		return feed.Batch[Property]{}, err
	}
	keys, err := decodeCursor(q.Sort, q.Cursor)
	if err != nil {
		return feed.Batch[Property]{}, err
	}

	s.mu.RLock()
	snap := make([]Property, 0, len(s.byID))
	for _, p := range s.byID {
		if p.Status == StatusPublished {
			snap = append(snap, p)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(snap, func(a, b Property) int { return compareProperties(q.Sort, a, b) })

	start := 0
	if keys != nil {
		start, _ = slices.BinarySearchFunc(snap, keys, func(p Property, k []any) int {
			// Items at or before the cursor sort "less" than the target.
			if compareToCursor(q.Sort, p, k) > 0 {
				return 1
			}
			return -1
		})
	}

	fetch := q.Limit + 1
	end := min(start+fetch, len(snap))
	out := append([]Property(nil), snap[start:end]...)

	var next *feed.Cursor
	if len(out) > q.Limit {
		out = out[:q.Limit]
		c, err := cursorAt(q.Sort, out[len(out)-1])
		if err != nil {
			return feed.Batch[Property]{}, err
		}
		next = &c
	}

	return feed.Batch[Property]{Items: out, Next: next}, nil
}
