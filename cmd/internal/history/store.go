// Package history records which listings a consumer has already been shown
// and serves that record back to the feed as a seen-set.
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
)

// TableName is the seen-history table (unqualified).
const TableName = "seen_items"

const (
	// MaxMarkBatch bounds a single MarkSeen call.
	MaxMarkBatch = 500

	// DefaultLoadLimit is the largest seen-set Load will serve. A consumer
	// past it fails the lookup instead of getting a partial set.
	DefaultLoadLimit = 10_000

	maxIDLen = 128
)

var (
	// ErrInvalidInput reports a bad consumer id or item id list.
	ErrInvalidInput = errors.New("history: invalid input")

	// ErrHistoryFull reports a seen history larger than the load limit.
	ErrHistoryFull = errors.New("history: seen history exceeds load limit")
)

// Store persists seen markers and serves them as a feed.SeenSetProvider.
//
// Load failures are wrapped in feed.ErrLookupFailed so the assembler treats
// them as fatal for the request.
type Store interface {
	feed.SeenSetProvider

	// MarkSeen records itemIDs as seen by consumerID. Marking is idempotent;
	// the result counts only ids that were not already recorded.
	MarkSeen(ctx context.Context, consumerID string, itemIDs []string, at time.Time) (int, error)

	Close() error
}

// markInput is the validated form of a MarkSeen call.
type markInput struct {
	consumerID string
	ids        []string
	at         time.Time
}

func normalizeMark(consumerID string, itemIDs []string, at time.Time) (markInput, error) {
	consumerID = strings.TrimSpace(consumerID)
	if consumerID == "" || len(consumerID) > maxIDLen {
		return markInput{}, fmt.Errorf("%w: bad consumer id", ErrInvalidInput)
	}
	if len(itemIDs) > MaxMarkBatch {
		return markInput{}, fmt.Errorf("%w: at most %d ids per call", ErrInvalidInput, MaxMarkBatch)
	}

	ids := make([]string, 0, len(itemIDs))
	dup := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		id = strings.TrimSpace(id)
		if id == "" || len(id) > maxIDLen {
			return markInput{}, fmt.Errorf("%w: bad item id", ErrInvalidInput)
		}
		if _, ok := dup[id]; ok {
			continue
		}
		dup[id] = struct{}{}
		ids = append(ids, id)
	}

	if at.IsZero() {
		at = time.Now()
	}
	return markInput{consumerID: consumerID, ids: ids, at: at.UTC().Truncate(time.Microsecond)}, nil
}

func historyFull(limit int) error {
	return fmt.Errorf("%w (%d)", ErrHistoryFull, limit)
}

func lookupFailed(op string, err error) error {
	return feed.OpError{Op: op, Kind: feed.ErrLookupFailed, Err: err}
}
