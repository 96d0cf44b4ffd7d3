package cmds

import (
	"context"
	"fmt"

	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"
)

type ModelsCommand struct {
	appCommand
}

func NewModelsCommand() *cobra.Command {
	c, err := NewModelsGlazeCommand()
	cobra.CheckErr(err)
	cmd := buildGlazeCommand(c)
	cmd.AddCommand(newModelsUseCommand())
	return cmd
}

func NewModelsGlazeCommand() (*ModelsCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	desc := cmds.NewCommandDescription(
		"models",
		cmds.WithShort("List the answering models"),
		cmds.WithLong("List the answering models. The selected column marks the model "+
			"used for new questions; change it with 'models use'."),
		cmds.WithSections(glazedSection),
	)
	return &ModelsCommand{appCommand: appCommand{CommandDescription: desc}}, nil
}

func (c *ModelsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	_ *values.Values,
	gp middlewares.Processor,
) error {
	a, err := c.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctrl, err := a.Controller(nil, nil)
	if err != nil {
		return err
	}
	if err := ctrl.LoadModels(ctx); err != nil {
		return wrapUnauthorized(err)
	}
	v := ctrl.View()
	for _, m := range v.Models {
		if err := gp.AddRow(ctx, modelRow(m, v.Model)); err != nil {
			return err
		}
	}
	return nil
}

var _ cmds.GlazeCommand = &ModelsCommand{}

func modelRow(m chat.Model, selected string) types.Row {
	return types.NewRow(
		types.MRP("id", m.ID),
		types.MRP("name", m.Name),
		types.MRP("selected", m.ID == selected),
	)
}

func newModelsUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use <id>",
		Short: "Select the model for future questions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := NewApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctrl, err := a.Controller(nil, nil)
			if err != nil {
				return err
			}
			if err := ctrl.LoadModels(cmd.Context()); err != nil {
				return wrapUnauthorized(err)
			}
			if err := ctrl.SetModel(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Using %s\n", args[0])
			return nil
		},
	}
}
