package cmds

import (
	"github.com/go-go-golems/glazed/pkg/cli"
	"github.com/go-go-golems/glazed/pkg/cmds"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// appCommand is embedded by the glazed listing commands. It keeps the cobra
// command it was built into so the global flags can be read when it runs.
type appCommand struct {
	*cmds.CommandDescription
	cobraCmd *cobra.Command
}

func (c *appCommand) attach(cmd *cobra.Command) { c.cobraCmd = cmd }

func (c *appCommand) openApp() (*App, error) {
	if c.cobraCmd == nil {
		return nil, errors.Errorf("%s is not attached to a cobra command", c.Name)
	}
	return NewApp(c.cobraCmd)
}

type glazeAppCommand interface {
	cmds.GlazeCommand
	attach(cmd *cobra.Command)
}

// buildGlazeCommand turns c into a cobra command that gets the glazed output
// flags (--output json|yaml|csv, --fields, ...).
func buildGlazeCommand(c glazeAppCommand) *cobra.Command {
	cmd, err := cli.BuildCobraCommand(c)
	cobra.CheckErr(err)
	c.attach(cmd)
	return cmd
}
