package history

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
type PostgresStore struct {
	pool      *pgxpool.Pool
	schema    string
	loadLimit int
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "haven").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("history: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("history: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// WithLoadLimit sets the largest seen-set Load serves (default DefaultLoadLimit).
func WithLoadLimit(n int) PostgresOption {
	return func(s *PostgresStore) error {
		if n < 1 {
			return errors.New("history: load limit must be positive")
		}
		s.loadLimit = n
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:      pool,
		schema:    "haven",
		loadLimit: DefaultLoadLimit,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("history: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// Load reads the consumer's full seen-set. It reads one row past the load
// limit so an oversized history fails the lookup rather than being cut short.
func (s *PostgresStore) Load(ctx context.Context, consumerID string) (feed.SeenSet, error) {
	if s == nil || s.pool == nil {
		return feed.SeenSet{}, lookupFailed("history.Load", errors.New("nil store"))
	}
	consumerID = strings.TrimSpace(consumerID)
	if consumerID == "" {
		return feed.SeenSet{}, lookupFailed("history.Load", ErrInvalidInput)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT item_id FROM `+pgIdent(s.schema, TableName)+`
		  WHERE consumer_id = $1
		  LIMIT $2`,
		consumerID, s.loadLimit+1,
	)
	if err != nil {
		return feed.SeenSet{}, lookupFailed("history.Load", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return feed.SeenSet{}, lookupFailed("history.Load", err)
	}
	if len(ids) > s.loadLimit {
		return feed.SeenSet{}, lookupFailed("history.Load", historyFull(s.loadLimit))
	}
	return feed.NewSeenSet(ids...), nil
}

// MarkSeen inserts markers with ON CONFLICT DO NOTHING so replays are harmless.
func (s *PostgresStore) MarkSeen(ctx context.Context, consumerID string, itemIDs []string, at time.Time) (int, error) {
	if s == nil || s.pool == nil {
		return 0, errors.New("history: nil store")
	}
	in, err := normalizeMark(consumerID, itemIDs, at)
	if err != nil {
		return 0, err
	}
	if len(in.ids) == 0 {
		return 0, nil
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, TableName)+` (consumer_id, item_id, seen_at)
		 SELECT $1, item_id, $3 FROM unnest($2::text[]) AS t(item_id)
		 ON CONFLICT (consumer_id, item_id) DO NOTHING`,
		in.consumerID, in.ids, in.at,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	return pgx.Identifier{schema, table}.Sanitize()
}
