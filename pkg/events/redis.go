package events

import (
	"context"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisSettings configures the optional Redis Streams mirror.
type RedisSettings struct {
	Addr     string
	Stream   string
	Group    string
	Consumer string
}

func (s RedisSettings) withDefaults() RedisSettings {
	if s.Addr == "" {
		s.Addr = "localhost:6379"
	}
	if s.Stream == "" {
		s.Stream = Topic
	}
	if s.Group == "" {
		s.Group = "datalens-tail"
	}
	if s.Consumer == "" {
		s.Consumer = "tail-1"
	}
	return s
}

// NewRedisMirror returns a bus option publishing events to a Redis stream.
func NewRedisMirror(s RedisSettings) (Option, error) {
	s = s.withDefaults()
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, NewWatermillLogger(log.Logger))
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "could not create redis publisher")
	}
	log.Debug().Str("addr", s.Addr).Str("stream", s.Stream).Msg("mirroring chat events to redis")
	return WithMirror(pub, s.Stream), nil
}

// NewRedisSubscriber subscribes to the mirrored stream with a consumer group
// created at the tail, so only new events are delivered.
func NewRedisSubscriber(ctx context.Context, s RedisSettings) (message.Subscriber, error) {
	s = s.withDefaults()
	client := redis.NewClient(&redis.Options{Addr: s.Addr})
	if err := ensureGroupAtTail(ctx, client, s.Stream, s.Group); err != nil {
		_ = client.Close()
		return nil, err
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  rstream.DefaultMarshallerUnmarshaller{},
		ConsumerGroup: s.Group,
		Consumer:      s.Consumer,
	}, NewWatermillLogger(log.Logger))
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "could not create redis subscriber")
	}
	return sub, nil
}

func ensureGroupAtTail(ctx context.Context, client redis.UniversalClient, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return errors.Wrapf(err, "could not create consumer group %s on %s", group, stream)
	}
	log.Info().Str("stream", stream).Str("group", group).Msg("created redis consumer group at tail")
	return nil
}
