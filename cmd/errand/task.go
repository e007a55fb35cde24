package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/aretw0/errand/internal/cli"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and remove task checkpoints",
	Long: `List, inspect, and remove task checkpoints held by the configured store.
The memory driver keeps nothing between runs, so these commands are only
useful with redis, sqlite or postgres.`,
}

var taskLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List tasks with a checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ids, err := app.Store.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("list tasks: %w", err)
		}
		if len(ids) == 0 {
			fmt.Println("No checkpointed tasks found.")
			return nil
		}
		fmt.Println("Tasks:")
		for _, id := range ids {
			fmt.Println("- " + id)
		}
		return nil
	},
}

var taskInspectCmd = &cobra.Command{
	Use:   "inspect <task-id>",
	Short: "Show a task's phase, progress, gathered information and plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		view, err := app.Orchestrator.Inspect(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("inspect task '%s': %w", args[0], err)
		}
		data, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <task-id>...",
	Short: "Remove one or more task checkpoints",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		hasError := false
		for _, id := range args {
			if err := app.Store.Delete(cmd.Context(), id); err != nil {
				fmt.Fprintf(os.Stderr, "Error removing '%s': %v\n", id, err)
				hasError = true
			} else {
				fmt.Printf("Removed task '%s'\n", id)
			}
		}
		if hasError {
			return fmt.Errorf("some tasks could not be removed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskLsCmd)
	taskCmd.AddCommand(taskInspectCmd)
	taskCmd.AddCommand(taskRmCmd)
}

func openApp(cmd *cobra.Command) (*cli.App, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return cli.NewApp(cmd.Context(), cfg, logger)
}
