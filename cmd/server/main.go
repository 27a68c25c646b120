/*
main.go - Application entry point

PURPOSE:
  Starts the brokerage engine server and runs its maintenance jobs from
  the command line. Handles configuration, dependency injection, and
  graceful shutdown.

COMMANDS:
  serve                 HTTP API + scheduler (+ NATS consumer when configured)
  backfill-commissions  One-shot retroactive commission generation
  generate-renewals     One-shot renewal sweep (--days)
  seed                  Load a demo scenario (--company, --scenario, --list)

FLAGS:
  --config  YAML config file (default: config.yaml; missing file = defaults)

ENVIRONMENT:
  .env is loaded when present. DATABASE_PATH, NATS_URL, JWT_SECRET,
  LOG_LEVEL and HTTP_PORT override the file.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests and in-flight commission jobs (30s timeout)
  4. Drain NATS, close database connection
  5. Exit

SEE ALSO:
  - api/server.go: Router configuration
  - config/config.go: Settings
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "brokerage",
		Short:         "Premium reconciliation and commission engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to YAML config")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		backfillCmd(&configPath),
		generateRenewalsCmd(&configPath),
		seedCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
