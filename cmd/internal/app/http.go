package app

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/api"
	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/realtime"
)

// newRouter builds the full HTTP surface: middleware stack, probes, metrics, websocket and API routes.
func newRouter(
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	gatherer prometheus.Gatherer,
	hm *httpMetrics,
	ws *realtime.WSGateway,
	feedAPI *api.Handler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(func(next http.Handler) http.Handler { return WithRequestLogging(next, log) })
	r.Use(middleware.Recoverer)
	r.Use(WithSecurityHeaders)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(func(next http.Handler) http.Handler { return WithCORS(next, cfg, log) })
	}
	if hm != nil {
		r.Use(hm.middleware)
	}

	registerHTTP(r, log, cfg, dbPool, dbEnabled, gatherer, ws, feedAPI)
	return r
}

func registerHTTP(
	r chi.Router,
	log Logger,
	cfg Config,
	dbPool *pgxpool.Pool,
	dbEnabled bool,
	gatherer prometheus.Gatherer,
	ws *realtime.WSGateway,
	feedAPI *api.Handler,
) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.ReadinessRequireDB && !dbEnabled {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}

		if dbEnabled && dbPool != nil {
			if err := PingDB(r.Context(), dbPool, 2*time.Second); err != nil {
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				log.Info("readyz.db.not_ready", "err", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if feedAPI != nil {
		feedAPI.Register(r)
	}

	if ws != nil {
		r.Get("/ws", ws.HandleWS)
	}
}

// runtimeBaseURL turns a listen address into a URL a local client can dial.
func runtimeBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return "http://" + strings.TrimSpace(addr)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// wsBaseURL maps an http(s) base URL onto its ws(s) equivalent.
func wsBaseURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return "ws://" + base
	}
}
