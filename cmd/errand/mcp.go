package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/aretw0/errand"
	"github.com/aretw0/errand/internal/cli"
	"github.com/aretw0/errand/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the orchestrator as MCP tools (chat, continue_task, get_task).

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := cli.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		srv := mcp.NewServer(app.Orchestrator, errand.Version, logger)
		go app.Cache.Run(ctx, cfg.Cache.SweepInterval)

		switch transport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			slog.Info("Starting errand MCP Server (Stdio)...")
			return srv.ServeStdio()
		case "sse":
			addr := fmt.Sprintf(":%d", port)
			baseURL := fmt.Sprintf("http://localhost:%d", port)
			if err := srv.ServeSSE(ctx, addr, baseURL); err != nil {
				return err
			}
			slog.Info("MCP Server stopped gracefully")
			return nil
		}
		return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (only for SSE)")
}
