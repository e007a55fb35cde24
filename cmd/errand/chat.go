package main

import (
	"os"

	"github.com/aretw0/errand/internal/cli"
	"github.com/aretw0/errand/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the orchestrator in the terminal",
	Long: `Starts an interactive session. Each line is a message; when a task asks a
question the next line answers it. Type "quit" or press Ctrl+C to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		location, _ := cmd.Flags().GetString("location")
		userID, _ := cmd.Flags().GetString("user")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := cli.NewApp(ctx, cfg, logger, cli.WithDebugHooks(debug))
		if err != nil {
			return err
		}
		defer app.Close()

		interactive := tui.IsTerminal(os.Stdout)
		if interactive {
			tui.PrintBanner(os.Stdout)
		}
		return cli.Chat(ctx, app.Orchestrator, cli.ChatOptions{
			In:       os.Stdin,
			Out:      os.Stdout,
			Render:   tui.ForOutput(os.Stdout),
			Progress: interactive,
			Location: location,
			UserID:   userID,
		})
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().Bool("debug", false, "Log node and tool events")
	chatCmd.Flags().String("location", "", "Where you are, as an address or city")
	chatCmd.Flags().String("user", "", "Known user id; a guest identity is minted when empty")
}
