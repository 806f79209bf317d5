package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aretw0/hmi/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Binds to the endpoint and serves hmi_query, hmi_old_query and
grammar_verify as MCP tools over Standard Input/Output, so agents can ask
people questions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		client, closeClient, err := connect(ctx, cmd, cfg, logger)
		if err != nil {
			return err
		}
		defer closeClient()

		// Ensure logs don't corrupt JSON-RPC on Stdout
		log.SetOutput(os.Stderr)
		logger.Info("starting HMI MCP server (stdio)", "endpoint", cfg.Endpoint)
		return mcp.NewServer(client, mcp.WithLogger(logger)).ServeStdio()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
