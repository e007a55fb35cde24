package main

import (
	"fmt"

	"github.com/aretw0/errand/internal/presentation/graph"
	"github.com/aretw0/errand/pkg/domain"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <task-type>",
	Short: "Print a task type's machine as a Mermaid flowchart",
	Long: `Prints the nodes and routes of the machine built for general, medicine or
travel tasks. With --task the node the task would resume at is highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tt, ok := domain.ParseTaskType(args[0])
		if !ok {
			return fmt.Errorf("unknown task type %q", args[0])
		}
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		m, err := app.Factory.Build(tt)
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if taskID, _ := cmd.Flags().GetString("task"); taskID != "" {
			view, err := app.Orchestrator.Inspect(cmd.Context(), taskID)
			if err != nil {
				return fmt.Errorf("inspect task '%s': %w", taskID, err)
			}
			overlay = &graph.Overlay{Current: graph.NoCurrent}
			if !view.Phase.Terminal() {
				overlay.Current = m.EntryFor(view.Phase)
			}
		}

		fmt.Print(graph.GenerateMermaid(m, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("task", "", "Highlight where this task stands")
}
