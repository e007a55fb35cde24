package main

import (
	"github.com/aretw0/errand"
	"github.com/aretw0/errand/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the orchestrator behind a JSON and server-sent events API:
POST /chat, POST /chat/stream, POST /task/{id}/continue, GET /task/{id},
GET /task/{id}/progress, GET /task/{id}/events, GET /health and GET /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTP.Addr = addr
		}

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := cli.NewApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer app.Close()

		if err := app.Serve(ctx, errand.Version); err != nil {
			return err
		}
		logger.Info("errand server stopped gracefully", "signal", ctx.Signal())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address, overrides http.addr")
}
