package main

import (
	"github.com/spf13/cobra"

	"github.com/st-eve-code/RealEstate-sub000/cmd/internal/app"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE:  runServe,
}

func runServe(_ *cobra.Command, _ []string) error {
	return app.Run(loadConfig())
}
