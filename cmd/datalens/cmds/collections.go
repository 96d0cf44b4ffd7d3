package cmds

import (
	"context"

	"github.com/go-go-golems/datalens/pkg/mention"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/go-go-golems/glazed/pkg/cmds/fields"
	"github.com/go-go-golems/glazed/pkg/cmds/values"
	"github.com/go-go-golems/glazed/pkg/middlewares"
	"github.com/go-go-golems/glazed/pkg/settings"
	"github.com/go-go-golems/glazed/pkg/types"
	"github.com/spf13/cobra"
)

type CollectionsCommand struct {
	appCommand
}

type CollectionsSettings struct {
	Query string `glazed:"query"`
}

func NewCollectionsCommand() *cobra.Command {
	c, err := NewCollectionsGlazeCommand()
	cobra.CheckErr(err)
	return buildGlazeCommand(c)
}

func NewCollectionsGlazeCommand() (*CollectionsCommand, error) {
	glazedSection, err := settings.NewGlazedSection()
	if err != nil {
		return nil, err
	}
	desc := cmds.NewCommandDescription(
		"collections",
		cmds.WithShort("List the collections you can reference with @"),
		cmds.WithLong("List the collections you can reference with @. With a query, show what "+
			"typing @query would suggest, in dropdown order."),
		cmds.WithArguments(
			fields.New(
				"query",
				fields.TypeString,
				fields.WithDefault(""),
				fields.WithHelp("Text typed after @"),
			),
		),
		cmds.WithSections(glazedSection),
	)
	return &CollectionsCommand{appCommand: appCommand{CommandDescription: desc}}, nil
}

func (c *CollectionsCommand) RunIntoGlazeProcessor(
	ctx context.Context,
	parsedLayers *values.Values,
	gp middlewares.Processor,
) error {
	s := &CollectionsSettings{}
	if err := parsedLayers.DecodeSectionInto(values.DefaultSlug, s); err != nil {
		return err
	}

	a, err := c.openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	catalog, err := a.Client.ListCollections(ctx)
	if err != nil {
		return wrapUnauthorized(err)
	}
	for _, cand := range mention.Resolve(catalog, s.Query) {
		if err := gp.AddRow(ctx, collectionRow(cand)); err != nil {
			return err
		}
	}
	return nil
}

var _ cmds.GlazeCommand = &CollectionsCommand{}

func collectionRow(c mention.Candidate) types.Row {
	return types.NewRow(
		types.MRP("ref", "@"+c.DisplayRef),
		types.MRP("owner", c.Ref.OwnerUsername),
		types.MRP("db_kind", string(c.Ref.DBKind)),
		types.MRP("row_count", c.Ref.RowCount),
		types.MRP("annotation", c.Annotation),
	)
}
