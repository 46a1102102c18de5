package listing

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/ids"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Fetch uses keyset pagination on the requested sort columns with a LIMIT n+1
// lookahead, so a batch that ends the result set carries a nil Next.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "haven").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("listing: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("listing: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "haven",
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
		return nil, errors.New("listing: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

const propertyColumns = `id, title, city, monthly_rent, bedrooms, status, caretaker_id, created_at`

// Create inserts a new property.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Property, error) {
	if s == nil || s.pool == nil {
		return Property{}, errors.New("listing: nil store")
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

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, TableName)+` (`+propertyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Title, p.City, p.MonthlyRent, p.Bedrooms, string(p.Status), p.CaretakerID, p.CreatedAt,
	); err != nil {
		return Property{}, fmt.Errorf("insert property: %w", err)
	}
	return p, nil
}

// Get returns a property by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Property, error) {
	if s == nil || s.pool == nil {
		return Property{}, errors.New("listing: nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Property{}, fmt.Errorf("%w: missing id", ErrInvalidInput)
	}

	p, err := scanProperty(s.pool.QueryRow(ctx,
		`SELECT `+propertyColumns+` FROM `+pgIdent(s.schema, TableName)+` WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Property{}, ErrNotFound
	}
	if err != nil {
		return Property{}, err
	}
	return p, nil
}

// CursorAt implements feed.Positioner.
func (s *PostgresStore) CursorAt(sort feed.SortConfig, p Property) (feed.Cursor, error) {
	return cursorAt(sort, p)
}

// Fetch returns published properties in q.Sort order, strictly after q.Cursor.
func (s *PostgresStore) Fetch(ctx context.Context, q feed.Query) (feed.Batch[Property], error) {
	if s == nil || s.pool == nil {
		return feed.Batch[Property]{}, fmt.Errorf("%w: nil store", feed.ErrSourceUnavailable)
	}
	if err := checkQuery(q); err != nil {
		return feed.Batch[Property]{}, err
	}
	keys, err := decodeCursor(q.Sort, q.Cursor)
	if err != nil {
		return feed.Batch[Property]{}, err
	}

	fetch := q.Limit + 1

	var (
		sql  strings.Builder
		args = []any{string(StatusPublished)}
	)
	sql.WriteString(`SELECT ` + propertyColumns + ` FROM ` + pgIdent(s.schema, TableName) + ` WHERE status = $1`)
	if keys != nil {
		sql.WriteString(` AND ` + keysetPredicate(q.Sort, len(args)+1))
		args = append(args, keys...)
	}
	sql.WriteString(` ORDER BY ` + orderByClause(q.Sort))
	args = append(args, fetch)
	sql.WriteString(` LIMIT $` + strconv.Itoa(len(args)))

	rows, err := s.pool.Query(ctx, sql.String(), args...)
	if err != nil {
		return feed.Batch[Property]{}, fmt.Errorf("%w: %w", feed.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	out := make([]Property, 0, fetch)
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return feed.Batch[Property]{}, fmt.Errorf("%w: %w", feed.ErrSourceUnavailable, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return feed.Batch[Property]{}, fmt.Errorf("%w: %w", feed.ErrSourceUnavailable, err)
	}

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

func scanProperty(row pgx.Row) (Property, error) {
	var (
		p      Property
		status string
	)
	if err := row.Scan(&p.ID, &p.Title, &p.City, &p.MonthlyRent, &p.Bedrooms, &status, &p.CaretakerID, &p.CreatedAt); err != nil {
		return Property{}, err
	}
	p.Status = Status(status)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}
