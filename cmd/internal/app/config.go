package app

import "time"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" (default) or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	DBSchema    string

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	// CursorKey signs feed cursors when set (16..64 bytes).
	CursorKey string

	FeedMaxAttempts       int
	FeedAmplification     int
	FeedFetchTimeout      time.Duration
	FeedOvershootRecovery bool
	FeedDefaultPageSize   int
	FeedAutoMarkSeen      bool
	HistoryLoadLimit      int

	WSOriginRequired bool
	WSAllowedOrigins []string
	WSDevInsecure    bool
	WSRateEvents     int
	WSRateWindow     time.Duration
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("HAVEN_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("HAVEN_LOG_LEVEL", "info"),
		LogFormat: EnvString("HAVEN_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("HAVEN_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("HAVEN_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("HAVEN_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("HAVEN_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("HAVEN_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("HAVEN_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("HAVEN_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("HAVEN_DB_MIN_CONNS", 0),
		DBSchema:    EnvString("HAVEN_DB_SCHEMA", "haven"),

		ReadinessRequireDB: EnvBool("HAVEN_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   EnvCSV("HAVEN_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: EnvBool("HAVEN_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("HAVEN_CORS_MAX_AGE_SECONDS", 600),

		CursorKey: EnvString("HAVEN_CURSOR_KEY", ""),

		FeedMaxAttempts:       EnvInt("HAVEN_FEED_MAX_ATTEMPTS", 5),
		FeedAmplification:     EnvInt("HAVEN_FEED_AMPLIFICATION", 1),
		FeedFetchTimeout:      EnvDuration("HAVEN_FEED_FETCH_TIMEOUT", 3*time.Second),
		FeedOvershootRecovery: EnvBool("HAVEN_FEED_OVERSHOOT_RECOVERY", false),
		FeedDefaultPageSize:   EnvInt("HAVEN_FEED_DEFAULT_PAGE_SIZE", 20),
		FeedAutoMarkSeen:      EnvBool("HAVEN_FEED_AUTO_MARK_SEEN", false),
		HistoryLoadLimit:      EnvInt("HAVEN_HISTORY_LOAD_LIMIT", 10_000),

		WSOriginRequired: EnvBool("HAVEN_WS_ORIGIN_REQUIRED", true),
		WSAllowedOrigins: EnvCSV("HAVEN_WS_ALLOWED_ORIGINS", []string{"http://localhost", "http://127.0.0.1"}),
		WSDevInsecure:    EnvBool("HAVEN_WS_DEV_INSECURE", false),
		WSRateEvents:     EnvInt("HAVEN_WS_RATE_EVENTS", 60),
		WSRateWindow:     EnvDuration("HAVEN_WS_RATE_WINDOW", 10*time.Second),
	}
}
