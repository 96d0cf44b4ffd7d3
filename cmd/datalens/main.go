package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/go-go-golems/datalens/cmd/datalens/cmds"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "datalens",
	Short:         "datalens answers questions about your data collections",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		lvl, _ := cmd.Flags().GetString("log-level")
		withCaller, _ := cmd.Flags().GetBool("with-caller")
		return cmds.InitLogger(lvl, withCaller)
	},
}

func main() {
	cmds.AddGlobalFlags(rootCmd)
	rootCmd.AddCommand(
		cmds.NewChatCommand(),
		cmds.NewAskCommand(),
		cmds.NewSessionsCommand(),
		cmds.NewCollectionsCommand(),
		cmds.NewModelsCommand(),
		cmds.NewEventsCommand(),
		cmds.NewConfigCommand(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	cobra.CheckErr(err)
}
