package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/adapters/driving/api"
	"github.com/custodia-labs/lectern/internal/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the ingestion workers",
	Long: `Starts the ingestion workers and serves the HTTP API under /api:
document upload and submission, job status with live progress events,
questions and scope deletion.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := serverConfig
	if serveAddr != "" {
		cfg.Addr = serveAddr
	}

	server, err := api.NewServer(&api.Ports{
		Ask:       askService,
		Ingestion: ingestionService,
		Upload:    uploadService,
		Progress:  progressFeed,
		Tasks:     taskReporter,
	}, cfg)
	if err != nil {
		return err
	}

	stop, err := startWorkers(cmd.Context())
	if err != nil {
		return fmt.Errorf("starting workers: %w", err)
	}
	defer stop()

	logger.Info("HTTP API listening on %s", cfg.Addr)
	cmd.Printf("Lectern API listening on %s\n", cfg.Addr)
	return server.Run(cmd.Context())
}
