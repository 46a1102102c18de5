// Package app wires the haven server runtime: config, logging, stores, HTTP routes, and the live listing gateway.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/api"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/feed"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/history"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/listing"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/realtime"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

var _ Store = stores{}

// stores bundles the listing source and seen history with the pool that backs them.
//
// Ownership model:
// - app owns pool lifecycle
// - PostgresStore.Close() is a no-op
type stores struct {
	listings listing.Store
	history  history.Store
	pool     *pgxpool.Pool
}

func (s stores) Close(_ context.Context) error {
	var errs []error
	if s.listings != nil {
		errs = append(errs, s.listings.Close())
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if s.pool != nil {
		s.pool.Close()
	}
	return errors.Join(errs...)
}

// App is the haven server runtime: it owns the stores, metrics registry and HTTP wiring.
type App struct {
	cfg Config
	log Logger

	store     stores
	dbEnabled bool

	registry    *prometheus.Registry
	httpMetrics *httpMetrics

	cursors *feed.CursorCodec
	ws      *realtime.WSGateway
	api     *api.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, dbEnabled, err := newStores(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a, err := wire(cfg, log, st, dbEnabled)
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}
	return a, nil
}

func wire(cfg Config, log Logger, st stores, dbEnabled bool) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	feedMetrics, err := feed.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("feed metrics: %w", err)
	}
	rtMetrics, err := realtime.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("realtime metrics: %w", err)
	}
	hm, err := newHTTPMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("http metrics: %w", err)
	}

	cursors, err := feed.NewCursorCodec([]byte(cfg.CursorKey))
	if err != nil {
		return nil, err
	}
	if !cursors.Signed() {
		log.Warn("feed.cursor.unsigned", "hint", "set HAVEN_CURSOR_KEY to authenticate cursors")
	}

	hub := realtime.NewHub(log, rtMetrics)
	ws := realtime.NewWSGateway(log, hub, gatewayConfig(cfg), rtMetrics)

	h, err := api.NewHandler(log, st.listings, st.history, cursors,
		api.WithPublisher(hub),
		api.WithConfig(api.Config{
			DefaultPageSize: cfg.FeedDefaultPageSize,
			AutoMarkSeen:    cfg.FeedAutoMarkSeen,
		}),
		api.WithFeedOptions(
			feed.WithMaxAttempts(cfg.FeedMaxAttempts),
			feed.WithAmplification(cfg.FeedAmplification),
			feed.WithFetchTimeout(cfg.FeedFetchTimeout),
			feed.WithOvershootRecovery(cfg.FeedOvershootRecovery),
			feed.WithMetrics(feedMetrics),
		),
	)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:         cfg,
		log:         log,
		store:       st,
		dbEnabled:   dbEnabled,
		registry:    reg,
		httpMetrics: hm,
		cursors:     cursors,
		ws:          ws,
		api:         h,
	}, nil
}

func gatewayConfig(cfg Config) realtime.GatewayConfig {
	gw := realtime.DefaultGatewayConfig()
	gw.OriginRequired = cfg.WSOriginRequired
	if len(cfg.WSAllowedOrigins) > 0 {
		gw.AllowedOrigins = cfg.WSAllowedOrigins
	}
	gw.DevInsecure = cfg.WSDevInsecure
	gw.RateEvents = cfg.WSRateEvents
	gw.RateWindow = cfg.WSRateWindow
	return gw
}

// Listings returns the listing store.
func (a *App) Listings() listing.Store { return a.store.listings }

// History returns the seen-history store.
func (a *App) History() history.Store { return a.store.history }

// API returns the feed HTTP handler.
func (a *App) API() *api.Handler { return a.api }

// Cursors returns the cursor codec shared by HTTP and CLI.
func (a *App) Cursors() *feed.CursorCodec { return a.cursors }

// Handler returns the complete HTTP handler.
func (a *App) Handler() http.Handler {
	return newRouter(a.log, a.cfg, a.store.pool, a.dbEnabled, a.registry, a.httpMetrics, a.ws, a.api)
}

// Close releases store resources. Run calls it on shutdown.
func (a *App) Close(ctx context.Context) error {
	return a.store.Close(ctx)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	// Hijacked websocket conns are not tracked by Shutdown; cancelling the
	// base context after Shutdown ends their sessions.
	baseCtx, cancelBase := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBase()

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"ws_url", wsBaseURL(base)+"/ws",
		"db_enabled", a.dbEnabled,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("server.fail", "err", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("server.stop", "reason", "context_done")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		defer cancelBase()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.log.Error("server.shutdown.fail", "err", err)
			return err
		}
		return nil
	})

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	if runErr != nil {
		return runErr
	}
	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStores decides between Postgres-backed persistence and in-memory dev stores.
func newStores(ctx context.Context, cfg Config, log Logger) (stores, bool, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return stores{
			listings: listing.NewMemoryStore(),
			history:  history.NewMemoryStore(history.WithMemoryLoadLimit(cfg.HistoryLoadLimit)),
		}, false, nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return stores{}, false, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	listings, err := listing.NewPostgresStore(pool, listing.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return stores{}, false, err
	}
	hist, err := history.NewPostgresStore(pool,
		history.WithSchema(cfg.DBSchema),
		history.WithLoadLimit(cfg.HistoryLoadLimit),
	)
	if err != nil {
		pool.Close()
		return stores{}, false, err
	}

	return stores{listings: listings, history: hist, pool: pool}, true, nil
}
