package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/app"
)

var (
	flagAddr        string
	flagDatabaseURL string
	flagLogLevel    string
	flagLogFormat   string
)

var rootCmd = &cobra.Command{
	Use:   "haven",
	Short: "Haven rental listing feed service",
	Long: `Haven serves a paginated feed of rental listings that skips units a
consumer has already seen, and pushes newly published listings over websockets.

Configuration comes from HAVEN_* environment variables; flags override them.`,
	SilenceUsage: true,
	// Bare "haven" runs the server.
	RunE: runServe,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagAddr, "addr", "", "HTTP listen address (overrides HAVEN_HTTP_ADDR)")
	pf.StringVar(&flagDatabaseURL, "database-url", "", "Postgres URL (overrides HAVEN_DATABASE_URL)")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug|info|warn|error (overrides HAVEN_LOG_LEVEL)")
	pf.StringVar(&flagLogFormat, "log-format", "", "json|pretty (overrides HAVEN_LOG_FORMAT)")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() app.Config {
	cfg := app.LoadConfig()
	if flagAddr != "" {
		cfg.HTTPAddr = flagAddr
	}
	if flagDatabaseURL != "" {
		cfg.DatabaseURL = flagDatabaseURL
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
