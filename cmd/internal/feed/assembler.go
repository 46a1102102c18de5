package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultMaxAttempts   = 5
	DefaultAmplification = 1
	DefaultFetchTimeout  = 3 * time.Second

	// MaxPageSize bounds the page a caller may request.
	MaxPageSize = 100

	maxBatchSize = 500
)

// Page is one assembled page of unseen items.
type Page[T Item] struct {
	Units      []T
	NextCursor *Cursor
	HasMore    bool

	// RoundTrips is the number of source fetches issued for this page.
	RoundTrips int
	// Outcome says why assembly stopped (one of the Outcome* constants).
	Outcome string
}

type options struct {
	table             string
	maxAttempts       int
	amplification     int
	fetchTimeout      time.Duration
	overshootRecovery bool
	log               *slog.Logger
	metrics           *Metrics
}

// Option configures an Assembler.
type Option func(*options)

// WithMaxAttempts caps the source round trips per page. Values < 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithAmplification sets the batch size as a multiple of the page size.
// Larger factors mean fewer round trips when most items are already seen.
func WithAmplification(factor int) Option {
	return func(o *options) {
		if factor > 0 {
			o.amplification = factor
		}
	}
}

// WithFetchTimeout bounds each source round trip. A timeout counts as a source failure.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.fetchTimeout = d
		}
	}
}

// WithOvershootRecovery makes the assembler resume right after the last
// returned item when the final batch holds more unseen items than fit in the
// page, instead of discarding them. It needs a Source that implements
// Positioner; other sources keep the discarding behavior.
func WithOvershootRecovery(enabled bool) Option {
	return func(o *options) { o.overshootRecovery = enabled }
}

// WithTable sets the table/collection name passed through in every Query.
func WithTable(table string) Option {
	return func(o *options) { o.table = table }
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Assembler builds pages of unseen items on top of a Source.
// It holds no per-call state and is safe for concurrent use.
type Assembler[T Item] struct {
	src  Source[T]
	sort SortConfig
	opts options
}

// NewAssembler constructs an Assembler for src ordered by sort.
func NewAssembler[T Item](src Source[T], sort SortConfig, opts ...Option) (*Assembler[T], error) {
	if src == nil {
		return nil, errors.New("feed: nil source")
	}
	if sort.IsZero() {
		return nil, OpError{Op: "feed.NewAssembler", Kind: ErrInvalidSort, Msg: "no fields"}
	}

	o := options{
		maxAttempts:   DefaultMaxAttempts,
		amplification: DefaultAmplification,
		fetchTimeout:  DefaultFetchTimeout,
		log:           slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&o)
	}

	return &Assembler[T]{src: src, sort: sort, opts: o}, nil
}

// Sort returns the sort configuration cursors must be minted under.
func (a *Assembler[T]) Sort() SortConfig { return a.sort }

// FetchUnseenPage loads the consumer's seen-set and assembles the next page.
// A failed lookup aborts the call: assembling against an assumed-empty set
// would resurface items the consumer has already seen.
func (a *Assembler[T]) FetchUnseenPage(ctx context.Context, seen SeenSetProvider, consumerID string, cursor *Cursor, pageSize int) (Page[T], error) {
	const op = "feed.FetchUnseenPage"

	if err := a.validate(op, cursor, pageSize); err != nil {
		return Page[T]{}, err
	}
	if seen == nil {
		return Page[T]{}, OpError{Op: op, Kind: ErrLookupFailed, Msg: "no seen-set provider"}
	}

	set, err := seen.Load(ctx, consumerID)
	if err != nil {
		a.opts.log.Warn("feed.seen.lookup.fail", "consumer_id", consumerID, "err", err)
		return Page[T]{}, OpError{Op: op, Kind: ErrLookupFailed, Err: err}
	}

	return a.FetchPage(ctx, set, cursor, pageSize)
}

// FetchPage assembles up to pageSize items absent from seen, starting after cursor.
func (a *Assembler[T]) FetchPage(ctx context.Context, seen SeenSet, cursor *Cursor, pageSize int) (Page[T], error) {
	const op = "feed.FetchPage"

	if err := a.validate(op, cursor, pageSize); err != nil {
		return Page[T]{}, err
	}

	batchSize := min(pageSize*a.opts.amplification, maxBatchSize)

	var (
		acc        = make([]T, 0, pageSize)
		cur        = cursor
		roundTrips int
		filtered   int
		outcome    = OutcomeAttemptsExceeded
	)

	for len(acc) < pageSize && roundTrips < a.opts.maxAttempts {
		batch, err := a.fetch(ctx, cur, batchSize)
		roundTrips++
		if err != nil {
			if errors.Is(err, ErrInvalidCursor) {
				return Page[T]{}, OpError{Op: op, Kind: ErrInvalidCursor, Err: err}
			}
			a.opts.metrics.sourceError()
			a.opts.log.Warn("feed.source.fail", "round_trip", roundTrips, "err", err)
			outcome = OutcomeSourceError
			break
		}

		if len(batch.Items) == 0 {
			// An empty batch means the source is drained, even when a cursor came in.
			cur = nil
			outcome = OutcomeExhausted
			break
		}

		for _, it := range batch.Items {
			if seen.Has(it.FeedID()) {
				filtered++
				continue
			}
			acc = append(acc, it)
		}

		cur = batch.Next
		if cur == nil {
			outcome = OutcomeExhausted
			break
		}
	}
	if len(acc) >= pageSize && outcome == OutcomeAttemptsExceeded {
		outcome = OutcomeFull
	}

	discarded := 0
	if len(acc) > pageSize {
		discarded = len(acc) - pageSize
		if a.opts.overshootRecovery {
			if next, ok := a.resumeAt(acc[pageSize-1]); ok {
				cur = next
				discarded = 0
			}
		}
		acc = acc[:pageSize]
	}

	a.opts.metrics.observePage(outcome, roundTrips, filtered, discarded)
	a.opts.log.Debug("feed.page",
		"outcome", outcome,
		"units", len(acc),
		"round_trips", roundTrips,
		"filtered", filtered,
		"discarded", discarded,
		"has_more", cur != nil,
	)

	return Page[T]{
		Units:      acc,
		NextCursor: cur,
		HasMore:    cur != nil,
		RoundTrips: roundTrips,
		Outcome:    outcome,
	}, nil
}

func (a *Assembler[T]) validate(op string, cursor *Cursor, pageSize int) error {
	if pageSize < 1 || pageSize > MaxPageSize {
		return OpError{Op: op, Kind: ErrInvalidPageSize, Msg: fmt.Sprintf("got %d, want 1..%d", pageSize, MaxPageSize)}
	}
	if !cursor.Matches(a.sort) {
		return OpError{Op: op, Kind: ErrInvalidCursor, Msg: "cursor was issued for a different sort"}
	}
	return nil
}

func (a *Assembler[T]) fetch(parent context.Context, cur *Cursor, limit int) (Batch[T], error) {
	if err := parent.Err(); err != nil {
		return Batch[T]{}, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(parent, a.opts.fetchTimeout)
	defer cancel()

	return a.src.Fetch(ctx, Query{
		Table:  a.opts.table,
		Sort:   a.sort,
		Cursor: cur,
		Limit:  limit,
	})
}

func (a *Assembler[T]) resumeAt(last T) (*Cursor, bool) {
	pos, ok := a.src.(Positioner[T])
	if !ok {
		return nil, false
	}
	c, err := pos.CursorAt(a.sort, last)
	if err != nil {
		a.opts.log.Warn("feed.overshoot.position.fail", "item_id", last.FeedID(), "err", err)
		return nil, false
	}
	return &c, true
}
