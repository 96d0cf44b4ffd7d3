package cmds

import (
	"fmt"

	"github.com/go-go-golems/datalens/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect chat events mirrored to Redis",
	}
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print chat events as they are published",
		Args:  cobra.NoArgs,
		RunE:  runEventsTail,
	}
	tail.Flags().String("group", "", "Consumer group (default datalens-tail)")
	tail.Flags().String("consumer", "", "Consumer name (default tail-1)")
	cmd.AddCommand(tail)
	return cmd
}

func runEventsTail(cmd *cobra.Command, _ []string) error {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return err
	}
	group, _ := cmd.Flags().GetString("group")
	consumer, _ := cmd.Flags().GetString("consumer")
	stream := cfg.Redis.Stream
	if stream == "" {
		stream = events.Topic
	}
	s := events.RedisSettings{
		Addr:     cfg.Redis.Addr,
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
	}

	ctx := cmd.Context()
	sub, err := events.NewRedisSubscriber(ctx, s)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	msgs, err := sub.Subscribe(ctx, stream)
	if err != nil {
		return errors.Wrap(err, "subscribe to chat events")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Str("stream", stream).Msg("tailing chat events")

	for msg := range msgs {
		msg.Ack()
		e, err := events.NewEventFromJSON(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Msg("skipping malformed event")
			continue
		}
		line := fmt.Sprintf("%s  %-18s", e.At.Format("15:04:05.000"), e.Kind)
		if e.SessionID != "" {
			line += "  session=" + e.SessionID
		}
		if e.Error != "" {
			line += "  error=" + fmt.Sprintf("%q", e.Error)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
