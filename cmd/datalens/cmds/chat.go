package cmds

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/datalens/pkg/events"
	"github.com/go-go-golems/datalens/pkg/ui"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Open the interactive chat",
		Args:  cobra.NoArgs,
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, _ []string) error {
	a, err := NewApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	withCaller, _ := cmd.Flags().GetBool("with-caller")
	logFile, err := LogToFile(a.Config.LogFile, a.Config.LogLevel, withCaller)
	if err != nil {
		return err
	}
	defer func() { _ = logFile.Close() }()

	var opts []events.Option
	if a.Config.Redis.Enabled {
		mirror, err := events.NewRedisMirror(events.RedisSettings{
			Addr:   a.Config.Redis.Addr,
			Stream: a.Config.Redis.Stream,
		})
		if err != nil {
			log.Warn().Err(err).Msg("redis mirror disabled")
		} else {
			opts = append(opts, mirror)
		}
	}
	bus := events.NewBus(opts...)
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close event bus")
		}
	}()

	relay := &ui.Relay{}
	ctrl, err := a.Controller(bus, relay)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	forwarding, err := bus.Forward(ctx, ui.ForwardFunc(relay))
	if err != nil {
		return err
	}

	p := tea.NewProgram(ui.NewModel(ctx, ctrl), tea.WithAltScreen(), tea.WithContext(ctx))
	relay.Attach(p)
	log.Info().Str("backend", a.Client.String()).Msg("starting chat")

	_, runErr := p.Run()
	relay.Attach(nil)
	cancel()
	<-forwarding

	if ctrl.State().InFlight {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Waiting for the pending answer, press ctrl+c to stop waiting...")
	}
	if err := ctrl.WaitContext(cmd.Context()); err != nil {
		log.Warn().Err(err).Msg("stopped waiting for the pending answer")
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return errors.Wrap(runErr, "chat UI failed")
	}
	return nil
}
