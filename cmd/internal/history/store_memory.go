package history

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
)

// MemoryStore is a dev-only fallback when DB is not configured.
// Each consumer keeps at most loadLimit markers; MarkSeen refuses to grow
// a history past that instead of evicting.
type MemoryStore struct {
	mu        sync.Mutex
	loadLimit int
	consumers map[string]map[string]time.Time
}

// MemoryOption configures MemoryStore behavior.
type MemoryOption func(*MemoryStore)

// WithMemoryLoadLimit caps each consumer's history (default DefaultLoadLimit).
// Values below 1 are ignored.
func WithMemoryLoadLimit(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n >= 1 {
			s.loadLimit = n
		}
	}
}

// NewMemoryStore constructs an in-memory Store implementation.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		loadLimit: DefaultLoadLimit,
		consumers: make(map[string]map[string]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// Load returns the consumer's seen-set. Unknown consumers get an empty set.
func (s *MemoryStore) Load(ctx context.Context, consumerID string) (feed.SeenSet, error) {
	if err := ctx.Err(); err != nil {
		return feed.SeenSet{}, lookupFailed("history.Load", err)
	}
	consumerID = strings.TrimSpace(consumerID)
	if consumerID == "" {
		return feed.SeenSet{}, lookupFailed("history.Load", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.consumers[consumerID]
	if len(seen) > s.loadLimit {
		return feed.SeenSet{}, lookupFailed("history.Load", historyFull(s.loadLimit))
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return feed.NewSeenSet(ids...), nil
}

// MarkSeen records ids as seen. A call that would take the consumer past the
// load limit records nothing and returns ErrHistoryFull.
func (s *MemoryStore) MarkSeen(ctx context.Context, consumerID string, itemIDs []string, at time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	in, err := normalizeMark(consumerID, itemIDs, at)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := s.consumers[in.consumerID]
	fresh := make([]string, 0, len(in.ids))
	for _, id := range in.ids {
		if _, ok := seen[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if len(seen)+len(fresh) > s.loadLimit {
		return 0, historyFull(s.loadLimit)
	}

	if seen == nil {
		seen = make(map[string]time.Time, len(fresh))
		s.consumers[in.consumerID] = seen
	}
	for _, id := range fresh {
		seen[id] = in.at
	}
	return len(fresh), nil
}
