package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/errand/internal/cli"
	"github.com/aretw0/errand/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "errand",
	Short: "Errand runs multi-step tasks through clarify, plan, execute and validate",
	Long: `Errand is a task orchestrator. Each message is routed to a task that asks
for missing details, plans tool calls, runs them and validates the result,
checkpointing after every step so a task can pause and resume.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "errand.yaml", "Path to the YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level (debug, info, warn, error)")
}

// loadConfig reads --config and builds the process logger, installing it as
// the slog default.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	level, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger, err := cli.NewLogger(cfg.Log, level)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}
