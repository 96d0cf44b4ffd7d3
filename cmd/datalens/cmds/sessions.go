package cmds

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewSessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"s"},
		Short:   "Manage conversations",
	}
	listCmd, err := NewSessionsListCommand()
	cobra.CheckErr(err)
	cmd.AddCommand(buildGlazeCommand(listCmd), newSessionsShowCommand(), newSessionsDeleteCommand())
	return cmd
}

type SessionsListCommand struct {
	appCommand
}

func NewSessionsListCommand() (*SessionsListCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	desc := cmds.NewCommandDescription(
		"list",
		cmds.WithShort("List conversations, most recent first"),
		cmds.WithSections(glazedSection),
	)
	return &SessionsListCommand{appCommand: appCommand{CommandDescription: desc}}, nil
}

func (c *SessionsListCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	_ *values.Values,
	gp middlewares.Processor,
) error {
	a, err := c.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sessions, err := a.Client.ListSessions(ctx)
	if err != nil {
		return wrapUnauthorized(err)
	}
	for _, s := range sessions {
		if err := gp.AddRow(ctx, sessionRow(s)); err != nil {
			return err
		}
	}
	return nil
}

var _ cmds.GlazeCommand = &SessionsListCommand{}

func sessionRow(s chat.SessionSummary) types.Row {
	return types.NewRow(
		types.MRP("id", s.ID),
		types.MRP("title", s.Title),
		types.MRP("message_count", s.MessageCount),
		types.MRP("updated_at", s.UpdatedAt),
	)
}

func newSessionsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := NewApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			h, err := a.Client.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printMarkdown(cmd.OutOrStdout(), transcriptMarkdown(h))
		},
	}
}

func newSessionsDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := NewApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			id := args[0]

			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				if !isTerminal(cmd.InOrStdin()) {
					return errors.New("refusing to delete without --yes when stdin is not a terminal")
				}
				confirmed := false
				err := huh.NewConfirm().
					Title(fmt.Sprintf("Delete conversation %s?", id)).
					Affirmative("Delete").
					Negative("Cancel").
					Value(&confirmed).
					Run()
				if err != nil {
					return errors.Wrap(err, "confirmation aborted")
				}
				if !confirmed {
					return nil
				}
			}

			ctrl, err := a.Controller(nil, nil)
			if err != nil {
				return err
			}
			if err := ctrl.Sessions().Delete(cmd.Context(), id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}
