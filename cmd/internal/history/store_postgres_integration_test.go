package history

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
)

// Integration tests are enabled when HAVEN_DATABASE_URL is set.

func TestPostgresStore_MarkAndLoad(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplySchema(t, pool, schema)

	st, err := NewPostgresStore(pool, WithSchema(schema), WithLoadLimit(3))
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3", "p4"} {
		n, err := st.MarkSeen(ctx, "c1", []string{id}, base.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("mark %s: %v", id, err)
		}
		if n != 1 {
			t.Fatalf("mark %s: expected 1, got %d", id, n)
		}
	}

	n, err := st.MarkSeen(ctx, "c1", []string{"p1", "p4"}, base)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n != 0 {
		t.Fatalf("replay must not insert, got %d", n)
	}

	// Four markers against a limit of three: the lookup fails rather than
	// serving a partial set.
	_, err = st.Load(ctx, "c1")
	if !feed.IsLookupFailed(err) || !errors.Is(err, ErrHistoryFull) {
		t.Fatalf("expected ErrLookupFailed wrapping ErrHistoryFull, got %v", err)
	}

	if _, err := st.MarkSeen(ctx, "c2", []string{"p1", "p2", "p3"}, base); err != nil {
		t.Fatalf("mark c2: %v", err)
	}
	set, err := st.Load(ctx, "c2")
	if err != nil {
		t.Fatalf("load at limit: %v", err)
	}
	if set.Len() != 3 || !set.Has("p1") || !set.Has("p3") {
		t.Fatalf("unexpected seen-set (len=%d)", set.Len())
	}

	empty, err := st.Load(ctx, "nobody")
	if err != nil {
		t.Fatalf("load unknown: %v", err)
	}
	if empty.Len() != 0 {
		t.Fatalf("expected empty set")
	}
}

func TestPostgresStore_MissingTableIsLookupFailed(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })

	st, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new postgres store: %v", err)
	}
	if _, err := st.Load(context.Background(), "c1"); !feed.IsLookupFailed(err) {
		t.Fatalf("expected ErrLookupFailed, got %v", err)
	}
}

func TestNewPostgresStore_Options(t *testing.T) {
	t.Parallel()

	if _, err := NewPostgresStore(nil); err == nil {
		t.Fatalf("expected nil pool error")
	}
	st := &PostgresStore{}
	if err := WithSchema("bad-name")(st); err == nil {
		t.Fatalf("expected schema validation error")
	}
	if err := WithLoadLimit(0)(st); err == nil {
		t.Fatalf("expected load limit validation error")
	}
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("HAVEN_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: HAVEN_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, raw)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Fatalf("ping: %v", err)
	}
	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	b := make([]byte, 6)
	_, _ = rand.Read(b)
	schema := "haven_it_" + hex.EncodeToString(b)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgx.Identifier{schema}.Sanitize()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
}

func mustApplySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Must remain semantically aligned with infra/db/schema.sql.
	ddl := fmt.Sprintf(`
CREATE TABLE %s (
  consumer_id  TEXT NOT NULL,
  item_id      TEXT NOT NULL,
  seen_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (consumer_id, item_id)
)`, pgIdent(schema, TableName))

	if _, err := pool.Exec(ctx, ddl); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}
