package app

import (
	"context"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const dbApplicationName = "haven"

// NewDBPool builds a pgxpool tuned for feed traffic and validates connectivity.
// Note: it does NOT run migrations; apply infra/db/schema.sql first.
func NewDBPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	pcfg, err := dbPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	if err := PingDB(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

// dbPoolConfig applies pool sizing and session parameters to the parsed URL.
// Each feed round trip is one keyset query, so statement_timeout follows the
// per-fetch budget and the server abandons queries the assembler has given
// up on. Parameters set in the URL win.
func dbPoolConfig(cfg Config) (*pgxpool.Config, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.DBMaxConns > 0 {
		pcfg.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns >= 0 {
		pcfg.MinConns = min(cfg.DBMinConns, pcfg.MaxConns)
	}

	params := pcfg.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = dbApplicationName
	}
	if _, ok := params["statement_timeout"]; !ok && cfg.FeedFetchTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(cfg.FeedFetchTimeout.Milliseconds(), 10)
	}

	return pcfg, nil
}

// PingDB checks if we can acquire a connection within timeout.
func PingDB(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}
