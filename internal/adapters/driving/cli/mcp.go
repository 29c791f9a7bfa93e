package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/lectern/internal/adapters/driving/mcp"
	"github.com/custodia-labs/lectern/internal/core/ports/driving"
)

var (
	mcpHTTP    string
	mcpAskOnly bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose Lectern to AI assistants over MCP",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Model Context Protocol server",
	Long: `Serves Lectern's tools to an assistant: ask and retrieve for questions,
submit and job_status for ingestion, plus document and job resources.

The server speaks JSON-RPC on stdin/stdout unless --http gives a listen
address for the streamable HTTP transport. Ingestion workers run alongside
it; --ask-only serves the question tools alone and starts no workers.

Assistant configuration for stdio:
  {
    "mcpServers": {
      "lectern": {"command": "/path/to/lectern", "args": ["mcp", "serve"]}
    }
  }`,
	Example: `  lectern mcp serve
  lectern mcp serve --http 127.0.0.1:8090
  lectern mcp serve --ask-only`,
	Args: cobra.NoArgs,
	RunE: runMCPServe,
}

func init() {
	mcpServeCmd.Flags().StringVar(&mcpHTTP, "http", "", "serve streamable HTTP on this address instead of stdio")
	mcpServeCmd.Flags().BoolVar(&mcpAskOnly, "ask-only", false, "serve only the ask and retrieve tools")
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

func runMCPServe(cmd *cobra.Command, _ []string) error {
	var ingest driving.IngestionService
	if !mcpAskOnly {
		ingest = ingestionService
	}
	server, err := mcp.NewServer(&mcp.Ports{Ask: askService, Ingestion: ingest})
	if err != nil {
		return err
	}

	if ingest != nil {
		stop, err := startWorkers(cmd.Context())
		if err != nil {
			return fmt.Errorf("starting workers: %w", err)
		}
		defer stop()
	}

	if mcpHTTP == "" {
		return server.Run(cmd.Context())
	}
	fmt.Fprintf(cmd.OutOrStdout(), "MCP server listening on %s\n", mcpHTTP)
	return server.RunHTTP(cmd.Context(), mcpHTTP)
}
