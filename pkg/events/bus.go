package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/go-go-golems/datalens/pkg/chat"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Topic carries chat state change notifications inside the process.
const Topic = "datalens.chat"

// Event is the wire form of a chat.ChangeEvent.
type Event struct {
	ID        string         `json:"id"`
	Kind      chat.EventKind `json:"kind"`
	SessionID string         `json:"session_id,omitempty"`
	Error     string         `json:"error,omitempty"`
	At        time.Time      `json:"at"`
}

func FromChange(ev chat.ChangeEvent) Event {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return Event{
		ID:        uuid.NewString(),
		Kind:      ev.Kind,
		SessionID: ev.SessionID,
		Error:     ev.Error,
		At:        at,
	}
}

func NewEventFromJSON(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "failed to parse chat event")
	}
	if e.Kind == "" {
		return Event{}, errors.New("chat event has no kind")
	}
	return e, nil
}

type Handler func(ctx context.Context, e Event) error

// Bus fans chat state changes out to in-process subscribers and, when
// configured, mirrors them to an external publisher.
type Bus struct {
	pubsub      *gochannel.GoChannel
	mirror      message.Publisher
	mirrorTopic string
	logger      watermill.LoggerAdapter

	closeOnce sync.Once
	closeErr  error
}

var _ chat.Listener = (*Bus)(nil)

type Option func(*Bus)

// WithMirror also publishes every event to p on topic.
func WithMirror(p message.Publisher, topic string) Option {
	return func(b *Bus) {
		b.mirror = p
		b.mirrorTopic = topic
	}
}

func NewBus(opts ...Option) *Bus {
	logger := NewWatermillLogger(log.Logger)
	b := &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 128,
		}, logger),
		logger: logger,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// OnChange publishes ev. Publishing never blocks the caller on a slow
// subscriber and failures are only logged.
func (b *Bus) OnChange(ev chat.ChangeEvent) {
	if err := b.Publish(FromChange(ev)); err != nil {
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("could not publish chat event")
	}
}

func (b *Bus) Publish(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to marshal chat event")
	}
	if err := b.pubsub.Publish(Topic, message.NewMessage(e.ID, payload)); err != nil {
		return errors.Wrap(err, "publish")
	}
	if b.mirror != nil {
		if err := b.mirror.Publish(b.mirrorTopic, message.NewMessage(e.ID, payload)); err != nil {
			return errors.Wrap(err, "mirror publish")
		}
	}
	return nil
}

// Forward subscribes to chat events and calls h for each one until ctx is
// cancelled or the bus is closed. The subscription is live once Forward
// returns; the returned channel closes when forwarding stops.
//
// The in-process pubsub hands each message to subscribers from its own
// goroutine, so h may see events in a different order than they were
// emitted. Events only say that something changed; handlers must re-read
// controller state instead of relying on the sequence.
func (b *Bus) Forward(ctx context.Context, h Handler) (<-chan struct{}, error) {
	msgs, err := b.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe")
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range msgs {
			msg.Ack()
			e, err := NewEventFromJSON(msg.Payload)
			if err != nil {
				log.Error().Err(err).Str("payload", string(msg.Payload)).Msg("dropping chat event")
				continue
			}
			if err := h(ctx, e); err != nil {
				log.Warn().Err(err).Str("kind", string(e.Kind)).Msg("chat event handler failed")
			}
		}
	}()
	return done, nil
}

func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.pubsub.Close()
		if b.mirror != nil {
			if err := b.mirror.Close(); err != nil && b.closeErr == nil {
				b.closeErr = err
			}
		}
	})
	return b.closeErr
}
